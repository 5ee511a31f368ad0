package webhook

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/tidehook/tidehook/internal/signer"
)

func testSubscriber() Subscriber {
	return Subscriber{
		ID:           "sub-1",
		TenantID:     "tenant-1",
		URL:          "https://receiver.example.com/hook",
		Secret:       "test-secret",
		IsActive:     true,
		RetryEnabled: true,
		MaxRetries:   5,
		Timeout:      10 * time.Second,
	}
}

func testEvent() Event {
	return Event{
		EventID:   "evt-1",
		EventType: "order.created",
		TenantID:  "tenant-1",
		Data:      map[string]any{"order_id": "ord-42", "amount": 19.99},
	}
}

func TestBuildRequest(t *testing.T) {
	sub := testSubscriber()
	event := testEvent()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	req, body, err := BuildRequest(context.Background(), sub, event, now)
	if err != nil {
		t.Fatalf("BuildRequest() error: %v", err)
	}

	if req.Method != "POST" {
		t.Errorf("method = %q, want POST", req.Method)
	}
	if req.URL.String() != sub.URL {
		t.Errorf("url = %q, want %q", req.URL.String(), sub.URL)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := req.Header.Get("User-Agent"); got != UserAgent {
		t.Errorf("User-Agent = %q, want %q", got, UserAgent)
	}
	if got := req.Header.Get(HeaderEventID); got != "evt-1" {
		t.Errorf("%s = %q, want evt-1", HeaderEventID, got)
	}
	if got := req.Header.Get(HeaderEventType); got != "order.created" {
		t.Errorf("%s = %q, want order.created", HeaderEventType, got)
	}
	if got := req.Header.Get(HeaderTimestamp); got != strconv.FormatInt(now.Unix(), 10) {
		t.Errorf("%s = %q, want %d", HeaderTimestamp, got, now.Unix())
	}

	// the request body must be the exact bytes that were signed
	sent, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading request body: %v", err)
	}
	if string(sent) != string(body) {
		t.Error("request body differs from returned payload bytes")
	}
	if sig := req.Header.Get(HeaderSignature); !signer.Verify(sub.Secret, sent, sig) {
		t.Errorf("signature %q does not verify against the body", sig)
	}

	var decoded Body
	if err := json.Unmarshal(sent, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.EventID != "evt-1" || decoded.EventType != "order.created" {
		t.Errorf("body = %+v, want event evt-1/order.created", decoded)
	}
	if decoded.Data["order_id"] != "ord-42" {
		t.Errorf("body data order_id = %v, want ord-42", decoded.Data["order_id"])
	}
}

func TestBuildRequestCustomHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		key     string
		want    string
	}{
		{
			name:    "custom header passes through",
			headers: map[string]string{"X-Custom-Token": "abc123"},
			key:     "X-Custom-Token",
			want:    "abc123",
		},
		{
			name:    "reserved signature header cannot be overridden",
			headers: map[string]string{"X-Tidehook-Signature": "forged"},
			key:     HeaderSignature,
			want:    "", // anything but "forged"; checked below
		},
		{
			name:    "reserved user agent wins regardless of case",
			headers: map[string]string{"user-agent": "evil/0.1"},
			key:     "User-Agent",
			want:    UserAgent,
		},
		{
			name:    "reserved content type wins",
			headers: map[string]string{"Content-Type": "text/plain"},
			key:     "Content-Type",
			want:    "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := testSubscriber()
			sub.Headers = tt.headers

			req, body, err := BuildRequest(context.Background(), sub, testEvent(), time.Now())
			if err != nil {
				t.Fatalf("BuildRequest() error: %v", err)
			}

			got := req.Header.Get(tt.key)
			if tt.key == HeaderSignature {
				if got == "forged" {
					t.Error("subscriber header overrode the signature")
				}
				if !signer.Verify(sub.Secret, body, got) {
					t.Errorf("signature %q does not verify", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("header %s = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
