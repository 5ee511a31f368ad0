package webhook

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a subscriber or delivery does not
// exist for the given id and tenant.
var ErrNotFound = errors.New("not found")

// ErrSubscriberInactive is returned by Deliver when the target subscriber has
// been deactivated; inactive subscribers are never the target of a new
// attempt.
var ErrSubscriberInactive = errors.New("subscriber is inactive")

// SubscriberStore is the subscriber catalog boundary. Deactivate and
// RecordAttemptOutcome form the lifecycle bridge: this subsystem never
// mutates subscriber rows directly.
type SubscriberStore interface {
	Get(ctx context.Context, subscriberID, tenantID string) (*Subscriber, error)
	Deactivate(ctx context.Context, subscriberID string) error
	RecordAttemptOutcome(ctx context.Context, subscriberID string, success bool) error
}

// DeliveryStore persists delivery records. This subsystem computes next
// states; storage ownership is external.
type DeliveryStore interface {
	Create(ctx context.Context, d *Delivery) error
	Update(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, deliveryID, tenantID string) (*Delivery, error)
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)
}

// Clock abstracts time for deterministic backoff and sweep tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
