package webhook

// Task is the queue envelope an event producer publishes to hand a delivery
// to a worker. The worker resolves the subscriber from the catalog before
// attempting anything, so the task carries ids rather than endpoint secrets.
type Task struct {
	SubscriberID string            `json:"subscriber_id"`
	TenantID     string            `json:"tenant_id"`
	EventID      string            `json:"event_id,omitempty"`
	EventType    string            `json:"event_type"`
	Payload      map[string]any    `json:"payload"`
	PublishedAt  string            `json:"published_at"`            // RFC3339
	TraceHeaders map[string]string `json:"trace_headers,omitempty"` // OTel trace propagation headers
}
