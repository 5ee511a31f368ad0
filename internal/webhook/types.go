package webhook

import "time"

// Status is the lifecycle state of a Delivery.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
	StatusDisabled Status = "disabled"
)

// Terminal reports whether a delivery in this status must never be mutated again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusDisabled
}

// Subscriber is a tenant-owned registration of an external URL that receives
// event notifications. This subsystem consumes subscribers read-only; mutation
// (deactivation, stats) goes through the SubscriberStore.
type Subscriber struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	URL        string            `json:"url"`
	Secret     string            `json:"secret"`
	EventTypes []string          `json:"event_types,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"` // static custom headers

	IsActive     bool          `json:"is_active"`
	RetryEnabled bool          `json:"retry_enabled"`
	MaxRetries   int           `json:"max_retries"`
	Timeout      time.Duration `json:"timeout"`
}

// Event is a single tenant-scoped business event to be notified about.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	TenantID  string         `json:"tenant_id,omitempty"`
}

// Delivery tracks one attempt-sequence for a single event to a single
// subscriber. It is created on the first attempt and mutated in place on every
// retry; it is never deleted here.
//
// Invariants: NextRetryAt is non-nil iff Status is retrying; AttemptNumber
// never decreases; once Status is terminal the record is frozen.
type Delivery struct {
	ID           string `json:"id"`
	SubscriberID string `json:"subscriber_id"`
	EventID      string `json:"event_id"`
	TenantID     string `json:"tenant_id"`

	// Event is the snapshot used to rebuild the request on retry; retries
	// re-sign from these bytes rather than trusting anything cached.
	Event Event `json:"event"`

	Status        Status     `json:"status"`
	AttemptNumber int        `json:"attempt_number"`
	ResponseCode  *int       `json:"response_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// Body is the JSON payload POSTed to the subscriber. The signature is computed
// over the exact marshaled bytes of this struct.
type Body struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}
