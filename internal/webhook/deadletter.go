package webhook

import (
	"context"
	"time"
)

const DeadLetterType = "delivery.dead_letter"

// DeadLetter is the envelope published when a delivery exhausts its retries.
type DeadLetter struct {
	Type       string   `json:"type"`    // "delivery.dead_letter"
	Version    string   `json:"version"` // schema version
	At         string   `json:"at"`      // RFC3339 time the envelope was emitted
	Reason     string   `json:"reason"`  // human/debug text
	Attempt    int      `json:"attempt"` // attempt count at exhaustion
	HTTPStatus int      `json:"http_status,omitempty"`
	LastError  string   `json:"last_error,omitempty"`
	Delivery   Delivery `json:"delivery"` // full delivery snapshot
}

// DeadLetterPublisher receives envelopes for terminally failed deliveries.
// Implementations must tolerate duplicate publications.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, dl DeadLetter) error
}

// NewDeadLetter builds the envelope for a terminally failed delivery.
func NewDeadLetter(d Delivery, reason string, now time.Time) DeadLetter {
	dl := DeadLetter{
		Type:      DeadLetterType,
		Version:   "v1",
		At:        now.Format(time.RFC3339Nano),
		Reason:    reason,
		Attempt:   d.AttemptNumber,
		LastError: d.ErrorMessage,
		Delivery:  d,
	}
	if d.ResponseCode != nil {
		dl.HTTPStatus = *d.ResponseCode
	}
	return dl
}
