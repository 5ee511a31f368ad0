package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tidehook/tidehook/internal/logging"
	"github.com/tidehook/tidehook/internal/metrics"
	"github.com/tidehook/tidehook/internal/tracing"
)

// Dispatcher ties the executor and state machine to the persistence
// collaborators. It exposes the three operations event producers and
// operational tooling call: Deliver, RetryDelivery, ProcessPendingRetries.
type Dispatcher struct {
	subs       SubscriberStore
	deliveries DeliveryStore
	exec       *Executor
	clock      Clock
	backoff    BackoffPolicy
	logger     *logging.Logger

	// deadLetters is optional; when set, terminally failed deliveries are
	// published as DeadLetter envelopes.
	deadLetters DeadLetterPublisher
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBackoff overrides the default backoff policy.
func WithBackoff(p BackoffPolicy) Option {
	return func(d *Dispatcher) { d.backoff = p }
}

// WithClock injects a clock for deterministic tests.
func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithDeadLetterPublisher enables dead-letter publication for exhausted
// deliveries.
func WithDeadLetterPublisher(p DeadLetterPublisher) Option {
	return func(d *Dispatcher) { d.deadLetters = p }
}

// NewDispatcher wires the delivery pipeline. exec may be nil, in which case a
// default pooled executor is used.
func NewDispatcher(subs SubscriberStore, deliveries DeliveryStore, exec *Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs:       subs,
		deliveries: deliveries,
		exec:       exec,
		clock:      SystemClock{},
		backoff:    DefaultBackoff(),
		logger:     logging.New("tidehook-dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.exec == nil {
		d.exec = NewExecutor(nil, d.clock)
	}
	return d
}

// Deliver fires a single delivery attempt for a fresh event. It is
// synchronous with respect to the one network attempt; any retries happen
// later via the sweep. Attempt-level failures never surface as errors: the
// returned Delivery describes the outcome. Errors are reserved for invalid
// input (inactive subscriber) and store failures.
func (dp *Dispatcher) Deliver(ctx context.Context, sub Subscriber, event Event) (*Delivery, error) {
	if !sub.IsActive {
		return nil, ErrSubscriberInactive
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.TenantID == "" {
		event.TenantID = sub.TenantID
	}

	ctx, span := tracing.StartSpan(ctx, "webhook.deliver",
		attribute.String("subscriber_id", sub.ID),
		attribute.String("tenant_id", sub.TenantID),
		attribute.String("event_id", event.EventID),
		attribute.String("event_type", event.EventType),
	)
	defer span.End()

	now := dp.clock.Now()
	d := &Delivery{
		ID:            uuid.New().String(),
		SubscriberID:  sub.ID,
		EventID:       event.EventID,
		TenantID:      sub.TenantID,
		Event:         event,
		Status:        StatusPending,
		AttemptNumber: 1,
		CreatedAt:     now,
	}
	if err := dp.deliveries.Create(ctx, d); err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, fmt.Errorf("create delivery: %w", err)
	}

	if err := dp.attempt(ctx, d, sub); err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, err
	}
	return d, nil
}

// RetryDelivery re-attempts a specific delivery by id. It returns false, with
// no attempt made and no state mutated, when the delivery does not exist, is
// already terminal, or its subscriber is missing or inactive. Errors are
// reserved for store failures.
func (dp *Dispatcher) RetryDelivery(ctx context.Context, deliveryID, tenantID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.retry_delivery",
		attribute.String("delivery_id", deliveryID),
		attribute.String("tenant_id", tenantID),
	)
	defer span.End()

	d, err := dp.deliveries.Get(ctx, deliveryID, tenantID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return false, fmt.Errorf("get delivery: %w", err)
	}
	if d.Status.Terminal() {
		dp.logger.WithContext(ctx).WithDelivery(d.ID).
			WithField("status", string(d.Status)).Warn("manual retry refused: delivery is terminal")
		return false, nil
	}

	sub, err := dp.subs.Get(ctx, d.SubscriberID, d.TenantID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return false, fmt.Errorf("get subscriber: %w", err)
	}
	if !sub.IsActive {
		dp.logger.WithContext(ctx).WithDelivery(d.ID).WithSubscriber(sub.ID).
			Warn("manual retry refused: subscriber inactive")
		return false, nil
	}

	d.AttemptNumber++
	if err := dp.attempt(ctx, d, *sub); err != nil {
		tracing.SetSpanError(ctx, err)
		return false, err
	}
	return true, nil
}

// ProcessPendingRetries re-attempts all due retries, up to limit. Deliveries
// whose subscriber is missing or inactive are forced to failed without
// network I/O and are not counted. Returns the number of deliveries
// re-attempted to completion.
func (dp *Dispatcher) ProcessPendingRetries(ctx context.Context, limit int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.process_pending_retries",
		attribute.Int("limit", limit),
	)
	defer span.End()

	due, err := dp.deliveries.FindDueRetries(ctx, dp.clock.Now(), limit)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, fmt.Errorf("find due retries: %w", err)
	}

	processed := 0
	for _, d := range due {
		sub, err := dp.subs.Get(ctx, d.SubscriberID, d.TenantID)
		if errors.Is(err, ErrNotFound) || (err == nil && !sub.IsActive) {
			dp.failWithoutAttempt(ctx, d, "subscriber missing or inactive")
			continue
		}
		if err != nil {
			tracing.SetSpanError(ctx, err)
			return processed, fmt.Errorf("get subscriber: %w", err)
		}

		d.AttemptNumber++
		if err := dp.attempt(ctx, d, *sub); err != nil {
			tracing.SetSpanError(ctx, err)
			return processed, err
		}
		processed++
	}

	metrics.RecordSweep(processed)
	span.SetAttributes(attribute.Int("processed", processed))
	return processed, nil
}

// attempt runs one executor pass and folds the state machine's decision into
// the delivery record, the store, the metrics, and the lifecycle bridge.
func (dp *Dispatcher) attempt(ctx context.Context, d *Delivery, sub Subscriber) error {
	tracing.AddSpanEvent(ctx, "http.send_webhook", attribute.Int("attempt", d.AttemptNumber))
	out := dp.exec.Execute(ctx, sub, d.Event)
	now := dp.clock.Now()

	dec := Transition(sub, d.AttemptNumber, out, now, dp.backoff)
	apply(d, out, dec, now)
	if err := dp.deliveries.Update(ctx, d); err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}

	log := dp.logger.WithContext(ctx).
		WithTenant(d.TenantID).
		WithEvent(d.EventID).
		WithDelivery(d.ID).
		WithSubscriber(sub.ID).
		WithFields(map[string]any{
			"attempt":    d.AttemptNumber,
			"outcome":    string(out.Classification),
			"latency_ms": out.LatencyMS,
		})

	switch dec.Status {
	case StatusSuccess:
		log.Info("delivery succeeded")
	case StatusDisabled:
		log.Warn("endpoint gone, disabling subscriber")
	case StatusRetrying:
		log.WithField("next_retry_at", d.NextRetryAt).Info("delivery failed, retry scheduled")
		metrics.RecordRetry(RetryReason(out))
	case StatusFailed:
		log.Error("delivery failed permanently")
	}

	metrics.RecordDelivery(string(dec.Status), d.TenantID, sub.ID, time.Duration(out.LatencyMS)*time.Millisecond)

	// Lifecycle bridge: counters on every attempt, deactivation on 410.
	// Bridge failures are logged, not propagated; the delivery outcome is
	// already durable.
	if err := dp.subs.RecordAttemptOutcome(ctx, sub.ID, dec.ReportSuccess); err != nil {
		dp.logger.WithContext(ctx).WithSubscriber(sub.ID).WithError(err).Error("record attempt outcome failed")
	}
	if dec.DeactivateSub {
		if err := dp.subs.Deactivate(ctx, sub.ID); err != nil {
			dp.logger.WithContext(ctx).WithSubscriber(sub.ID).WithError(err).Error("subscriber deactivation failed")
		} else {
			metrics.RecordSubscriberDisabled()
		}
	}

	if dec.Status == StatusFailed && dp.deadLetters != nil {
		dl := NewDeadLetter(*d, fmt.Sprintf("retries exhausted after %d attempts", d.AttemptNumber), now)
		if err := dp.deadLetters.Publish(ctx, dl); err != nil {
			dp.logger.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("dead letter publish failed")
		} else {
			metrics.RecordDeadLetter(RetryReason(out))
		}
	}

	return nil
}

// failWithoutAttempt transitions a swept delivery straight to failed when its
// subscriber cannot be loaded. Update errors are logged rather than aborting
// the sweep; the record stays due and a later pass picks it up again.
func (dp *Dispatcher) failWithoutAttempt(ctx context.Context, d *Delivery, reason string) {
	now := dp.clock.Now()
	d.Status = StatusFailed
	d.NextRetryAt = nil
	d.ErrorMessage = reason
	d.LastAttemptAt = &now
	if err := dp.deliveries.Update(ctx, d); err != nil {
		dp.logger.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("force-fail update failed")
		return
	}
	dp.logger.WithContext(ctx).WithDelivery(d.ID).WithField("reason", reason).Warn("delivery failed without attempt")
	metrics.RecordDelivery(string(StatusFailed), d.TenantID, d.SubscriberID, 0)
}
