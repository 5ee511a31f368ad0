package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Classification buckets the raw result of one delivery attempt. It is the
// sole input to the state machine's transition rules.
type Classification string

const (
	ClassOK             Classification = "http_ok"         // 2xx
	ClassGone           Classification = "http_gone"       // 410, permanent
	ClassHTTPError      Classification = "http_error"      // any other 4xx/5xx
	ClassTimeout        Classification = "timeout"         // deadline exceeded
	ClassTransportError Classification = "transport_error" // conn refused, dns, tls, ...
)

// Outcome is the classified result of exactly one network attempt.
type Outcome struct {
	Classification Classification
	StatusCode     int    // 0 when no response was received
	Detail         string // response body snippet or underlying error text
	LatencyMS      int64
}

// Retryable reports whether the outcome is a transient failure governed by
// the subscriber's retry policy. Gone is a permanent failure and OK is not a
// failure at all.
func (o Outcome) Retryable() bool {
	switch o.Classification {
	case ClassHTTPError, ClassTimeout, ClassTransportError:
		return true
	}
	return false
}

// classify maps a transport error or HTTP status to a Classification.
func classify(doErr error, status int, bodySnippet string) Outcome {
	if doErr != nil {
		if errors.Is(doErr, context.DeadlineExceeded) || strings.Contains(strings.ToLower(doErr.Error()), "timeout") {
			return Outcome{Classification: ClassTimeout, Detail: doErr.Error()}
		}
		return Outcome{Classification: ClassTransportError, Detail: doErr.Error()}
	}
	switch {
	case status >= 200 && status < 300:
		return Outcome{Classification: ClassOK, StatusCode: status}
	case status == 410:
		return Outcome{Classification: ClassGone, StatusCode: status, Detail: "endpoint gone (410)"}
	default:
		detail := fmt.Sprintf("webhook returned status %d", status)
		if bodySnippet != "" {
			detail += ": " + bodySnippet
		}
		return Outcome{Classification: ClassHTTPError, StatusCode: status, Detail: detail}
	}
}

// RetryReason labels a retryable outcome for metrics.
func RetryReason(o Outcome) string {
	switch o.Classification {
	case ClassTimeout:
		return "timeout"
	case ClassTransportError:
		return "network"
	case ClassHTTPError:
		if o.StatusCode >= 500 {
			return "http_5xx"
		}
		if o.StatusCode == 429 {
			return "http_429"
		}
		return "http_4xx"
	}
	return "other"
}
