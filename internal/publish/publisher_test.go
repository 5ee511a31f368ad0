package publish

import (
	"context"
	"testing"

	"github.com/tidehook/tidehook/internal/webhook"
)

func TestPublishEventValidation(t *testing.T) {
	tests := []struct {
		name  string
		event webhook.Event
	}{
		{
			name:  "missing tenant",
			event: webhook.Event{EventType: "order.created"},
		},
		{
			name:  "missing event type",
			event: webhook.Event{TenantID: "tenant-1"},
		},
		{
			name:  "missing both",
			event: webhook.Event{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(nil, nil, "deliveries")
			fanout, err := p.PublishEvent(context.Background(), tt.event)
			if err == nil {
				t.Error("PublishEvent() error = nil, want validation error")
			}
			if fanout != 0 {
				t.Errorf("fanout = %d, want 0", fanout)
			}
		})
	}
}

func TestTasksFor(t *testing.T) {
	event := webhook.Event{
		EventID:   "evt-1",
		EventType: "order.created",
		TenantID:  "tenant-1",
		Data:      map[string]any{"order_id": "ord-1"},
	}
	headers := map[string]string{"traceparent": "00-abc-def-01"}
	subscriberIDs := []string{"sub-1", "sub-2", "sub-3"}

	tasks := tasksFor(subscriberIDs, event, headers, "2025-06-01T12:00:00Z")

	if len(tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(tasks))
	}
	for i, task := range tasks {
		if task.SubscriberID != subscriberIDs[i] {
			t.Errorf("task %d subscriber = %q, want %q", i, task.SubscriberID, subscriberIDs[i])
		}
		if task.EventID != "evt-1" || task.EventType != "order.created" || task.TenantID != "tenant-1" {
			t.Errorf("task %d event fields = %+v", i, task)
		}
		if task.TraceHeaders["traceparent"] == "" {
			t.Errorf("task %d missing trace headers", i)
		}
		if task.PublishedAt != "2025-06-01T12:00:00Z" {
			t.Errorf("task %d published at = %q", i, task.PublishedAt)
		}
	}

	if got := tasksFor(nil, event, nil, ""); len(got) != 0 {
		t.Errorf("tasksFor(nil) = %d tasks, want 0", len(got))
	}
}
