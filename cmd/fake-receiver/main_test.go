package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/tidehook/tidehook/internal/signer"
)

func newTestReceiver() *receiver {
	return &receiver{
		secret:  "test-secret",
		maxSkew: 5 * time.Minute,
	}
}

func TestVerify(t *testing.T) {
	rc := newTestReceiver()
	body := []byte(`{"event_id":"evt-1"}`)
	now := time.Now().Unix()
	nowStr := strconv.FormatInt(now, 10)
	validSig := signer.Sign(rc.secret, body)

	tests := []struct {
		name        string
		body        []byte
		timestamp   string
		signature   string
		expectValid bool
		expectedMsg string
	}{
		{
			name:        "valid signature",
			body:        body,
			timestamp:   nowStr,
			signature:   validSig,
			expectValid: true,
		},
		{
			name:        "missing timestamp",
			body:        body,
			timestamp:   "",
			signature:   validSig,
			expectValid: false,
			expectedMsg: "missing headers",
		},
		{
			name:        "missing signature",
			body:        body,
			timestamp:   nowStr,
			signature:   "",
			expectValid: false,
			expectedMsg: "missing headers",
		},
		{
			name:        "invalid timestamp format",
			body:        body,
			timestamp:   "not-a-number",
			signature:   validSig,
			expectValid: false,
			expectedMsg: "invalid timestamp",
		},
		{
			name:        "timestamp too old",
			body:        body,
			timestamp:   strconv.FormatInt(now-3600, 10),
			signature:   validSig,
			expectValid: false,
			expectedMsg: "timestamp too far from now (outside leeway)",
		},
		{
			name:        "tampered body",
			body:        []byte(`{"event_id":"evt-2"}`),
			timestamp:   nowStr,
			signature:   validSig,
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
		{
			name:        "garbage signature",
			body:        body,
			timestamp:   nowStr,
			signature:   "deadbeef",
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := rc.verify(tt.body, tt.timestamp, tt.signature)
			if ok != tt.expectValid {
				t.Errorf("verify() = %v, want %v (msg=%q)", ok, tt.expectValid, msg)
			}
			if msg != tt.expectedMsg {
				t.Errorf("verify() msg = %q, want %q", msg, tt.expectedMsg)
			}
		})
	}
}

func TestHandleHook(t *testing.T) {
	t.Run("accepts a correctly signed request", func(t *testing.T) {
		rc := newTestReceiver()
		body := []byte(`{"event_id":"evt-1","event_type":"order.created","data":{}}`)

		req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
		req.Header.Set(sigHeader, signer.Sign(rc.secret, body))
		req.Header.Set(tsHeader, strconv.FormatInt(time.Now().Unix(), 10))
		rec := httptest.NewRecorder()

		rc.handleHook(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		rc := newTestReceiver()
		body := []byte(`{"event_id":"evt-1"}`)

		req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
		req.Header.Set(sigHeader, "bogus")
		req.Header.Set(tsHeader, strconv.FormatInt(time.Now().Unix(), 10))
		rec := httptest.NewRecorder()

		rc.handleHook(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("skips verification without a secret", func(t *testing.T) {
		rc := &receiver{maxSkew: 5 * time.Minute}

		req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()

		rc.handleHook(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("fails the first N requests", func(t *testing.T) {
		rc := &receiver{failFirstN: 2, maxSkew: 5 * time.Minute}

		for i, want := range []int{500, 500, 200, 200} {
			req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader([]byte(`{}`)))
			rec := httptest.NewRecorder()

			rc.handleHook(rec, req)

			if rec.Code != want {
				t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, want)
			}
		}
	})
}

func TestAbs64(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{0, 0},
		{5, 5},
		{-5, 5},
	}
	for _, tt := range tests {
		if got := abs64(tt.in); got != tt.want {
			t.Errorf("abs64(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten!", 12, "exactly-ten!"},
		{"this is a longer string", 7, "this is..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
