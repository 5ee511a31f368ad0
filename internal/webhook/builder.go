package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tidehook/tidehook/internal/signer"
	"github.com/tidehook/tidehook/internal/tracing"
)

const (
	// UserAgent identifies tidehook on outbound webhook requests.
	UserAgent = "tidehook/1.0"

	HeaderSignature = "X-Tidehook-Signature"
	HeaderEventID   = "X-Tidehook-Event-Id"
	HeaderEventType = "X-Tidehook-Event-Type"
	HeaderTimestamp = "X-Tidehook-Timestamp" // unix seconds
	HeaderTraceID   = "X-Trace-Id"           // correlation with the sender's traces
)

// reservedHeaders are written by the builder and cannot be overridden by a
// subscriber's custom headers. Reserved keys win on collision so a subscriber
// cannot accidentally clobber the signature.
var reservedHeaders = map[string]bool{
	"Content-Type":  true,
	"User-Agent":    true,
	HeaderSignature: true,
	HeaderEventID:   true,
	HeaderEventType: true,
	HeaderTimestamp: true,
	HeaderTraceID:   true,
}

// BuildRequest marshals the event body, signs the exact bytes, and assembles
// the outbound POST with the standard header set followed by the subscriber's
// custom headers (non-reserved keys only).
func BuildRequest(ctx context.Context, sub Subscriber, event Event, now time.Time) (*http.Request, []byte, error) {
	body, err := json.Marshal(Body{
		EventID:   event.EventID,
		EventType: event.EventType,
		Data:      event.Data,
	})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderSignature, signer.Sign(sub.Secret, body))
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set(HeaderTraceID, traceID)
	}

	for k, v := range sub.Headers {
		if reservedHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		req.Header.Set(k, v)
	}

	return req, body, nil
}
