package webhook

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseSnippet = 200

// Executor performs exactly one bounded network attempt per call. Retries
// never happen here; the state machine decides whether another attempt is
// scheduled.
type Executor struct {
	client *http.Client
	clock  Clock
}

// NewExecutor wraps an HTTP client. The client is injected rather than built
// lazily so tests can substitute a fake transport and so the pool is scoped
// to the subsystem's lifetime. A nil client gets a pooled default without a
// client-level timeout (the per-subscriber timeout bounds each attempt).
func NewExecutor(client *http.Client, clock Clock) *Executor {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Executor{client: client, clock: clock}
}

// Execute issues a single POST to the subscriber URL, bounded by the
// subscriber's configured timeout, and classifies the raw result.
func (e *Executor) Execute(ctx context.Context, sub Subscriber, event Event) Outcome {
	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.clock.Now()
	req, _, err := BuildRequest(reqCtx, sub, event, start)
	if err != nil {
		return Outcome{Classification: ClassTransportError, Detail: err.Error()}
	}

	resp, doErr := e.client.Do(req)
	latency := e.clock.Now().Sub(start)

	var status int
	var snippet string
	if doErr == nil {
		status = resp.StatusCode
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		snippet = responseSnippet(b)
	} else if reqCtx.Err() == context.DeadlineExceeded {
		doErr = context.DeadlineExceeded
	}

	out := classify(doErr, status, snippet)
	out.LatencyMS = latency.Milliseconds()
	return out
}

// responseSnippet flattens and truncates an error response body so it is safe
// to store and log.
func responseSnippet(b []byte) string {
	s := strings.ReplaceAll(string(b), "\n", " ")
	if len(s) > maxResponseSnippet {
		s = s[:maxResponseSnippet] + "..."
	}
	return strings.TrimSpace(s)
}
