package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tidehook/tidehook/internal/tracing"
	"github.com/tidehook/tidehook/internal/webhook"
)

// TaskProducer is the queue boundary; *nsq.Producer satisfies it.
type TaskProducer interface {
	Publish(topic string, body []byte) error
}

// Publisher fans an event out to every active subscriber registered for its
// type and enqueues one delivery task per subscriber. Workers consume the
// tasks and run the delivery pipeline.
type Publisher struct {
	pool  *pgxpool.Pool
	prod  TaskProducer
	topic string
}

func NewPublisher(pool *pgxpool.Pool, prod TaskProducer, topic string) *Publisher {
	return &Publisher{pool: pool, prod: prod, topic: topic}
}

// PublishEvent enqueues one task per matching subscriber and returns the
// fan-out count. A subscriber with an empty event_types list receives every
// event type.
func (p *Publisher) PublishEvent(ctx context.Context, event webhook.Event) (int, error) {
	if event.TenantID == "" || event.EventType == "" {
		return 0, fmt.Errorf("tenant id and event type are required")
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	ctx, span := tracing.StartSpan(ctx, "publish.event",
		attribute.String("tenant_id", event.TenantID),
		attribute.String("event_id", event.EventID),
		attribute.String("event_type", event.EventType),
	)
	defer span.End()

	rows, err := p.pool.Query(ctx, `
		SELECT id
		FROM tidehook.subscribers
		WHERE tenant_id = $1
		  AND is_active
		  AND (cardinality(event_types) = 0 OR $2 = ANY(event_types))`,
		event.TenantID, event.EventType,
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var subscriberIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		subscriberIDs = append(subscriberIDs, id)
	}
	if err := rows.Err(); err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("subscribers_count", len(subscriberIDs)))

	traceHeaders := tracing.PropagateTraceToNSQ(ctx)
	publishedAt := time.Now().UTC().Format(time.RFC3339)

	fanout := 0
	for _, task := range tasksFor(subscriberIDs, event, traceHeaders, publishedAt) {
		b, err := json.Marshal(task)
		if err != nil {
			return fanout, err
		}
		if err := p.prod.Publish(p.topic, b); err != nil {
			tracing.SetSpanError(ctx, err)
			return fanout, fmt.Errorf("nsq publish: %w", err)
		}
		fanout++
	}

	tracing.AddSpanEvent(ctx, "nsq.published_tasks",
		attribute.Int("task_count", fanout),
		attribute.String("topic", p.topic))
	return fanout, nil
}

// tasksFor builds one queue task per target subscriber.
func tasksFor(subscriberIDs []string, event webhook.Event, traceHeaders map[string]string, publishedAt string) []webhook.Task {
	tasks := make([]webhook.Task, 0, len(subscriberIDs))
	for _, subscriberID := range subscriberIDs {
		tasks = append(tasks, webhook.Task{
			SubscriberID: subscriberID,
			TenantID:     event.TenantID,
			EventID:      event.EventID,
			EventType:    event.EventType,
			Payload:      event.Data,
			PublishedAt:  publishedAt,
			TraceHeaders: traceHeaders,
		})
	}
	return tasks
}
