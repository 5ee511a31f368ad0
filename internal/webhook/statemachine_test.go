package webhook

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	// jitter disabled so delays are exact
	policy := BackoffPolicy{
		Base:       time.Minute,
		Multiplier: 2,
		Ceiling:    time.Hour,
		JitterPct:  0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 16 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour}, // 64m clamped to the ceiling
		{8, time.Hour},
		{20, time.Hour},
		{0, time.Minute},  // invalid attempt treated as first
		{-3, time.Minute}, // invalid attempt treated as first
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelayMonotonic(t *testing.T) {
	policy := BackoffPolicy{Base: 30 * time.Second, Multiplier: 3, Ceiling: 2 * time.Hour}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := policy.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		if d > 2*time.Hour {
			t.Fatalf("Delay(%d) = %v exceeds the ceiling", attempt, d)
		}
		prev = d
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	policy := BackoffPolicy{
		Base:       time.Minute,
		Multiplier: 2,
		Ceiling:    time.Hour,
		JitterPct:  0.2,
	}

	for i := 0; i < 200; i++ {
		d := policy.Delay(2) // nominal 2m
		lo, hi := 96*time.Second, 144*time.Second
		if d < lo || d > hi {
			t.Fatalf("Delay(2) = %v outside jitter window [%v, %v]", d, lo, hi)
		}
	}
}

func TestBackoffDelayFloor(t *testing.T) {
	policy := BackoffPolicy{Base: time.Second, Multiplier: 2, Ceiling: time.Hour, JitterPct: 0.9}

	for i := 0; i < 100; i++ {
		if d := policy.Delay(1); d < time.Second {
			t.Fatalf("Delay(1) = %v, want at least 1s", d)
		}
	}
}

func TestTransition(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backoff := BackoffPolicy{Base: time.Minute, Multiplier: 2, Ceiling: time.Hour, JitterPct: 0}

	retryingSub := testSubscriber() // RetryEnabled, MaxRetries 5

	noRetrySub := testSubscriber()
	noRetrySub.RetryEnabled = false

	tests := []struct {
		name           string
		sub            Subscriber
		attempt        int
		out            Outcome
		wantStatus     Status
		wantRetryAt    *time.Time
		wantDeactivate bool
		wantSuccess    bool
	}{
		{
			name:        "2xx succeeds",
			sub:         retryingSub,
			attempt:     1,
			out:         Outcome{Classification: ClassOK, StatusCode: 200},
			wantStatus:  StatusSuccess,
			wantSuccess: true,
		},
		{
			name:        "2xx succeeds on the final attempt too",
			sub:         retryingSub,
			attempt:     5,
			out:         Outcome{Classification: ClassOK, StatusCode: 204},
			wantStatus:  StatusSuccess,
			wantSuccess: true,
		},
		{
			name:           "410 disables even with attempts left",
			sub:            retryingSub,
			attempt:        1,
			out:            Outcome{Classification: ClassGone, StatusCode: 410},
			wantStatus:     StatusDisabled,
			wantDeactivate: true,
		},
		{
			name:           "410 disables when retries are off",
			sub:            noRetrySub,
			attempt:        1,
			out:            Outcome{Classification: ClassGone, StatusCode: 410},
			wantStatus:     StatusDisabled,
			wantDeactivate: true,
		},
		{
			name:        "500 retries with attempts left",
			sub:         retryingSub,
			attempt:     1,
			out:         Outcome{Classification: ClassHTTPError, StatusCode: 500},
			wantStatus:  StatusRetrying,
			wantRetryAt: timePtr(now.Add(time.Minute)),
		},
		{
			name:        "timeout retries with growing delay",
			sub:         retryingSub,
			attempt:     3,
			out:         Outcome{Classification: ClassTimeout},
			wantStatus:  StatusRetrying,
			wantRetryAt: timePtr(now.Add(4 * time.Minute)),
		},
		{
			name:        "transport error retries",
			sub:         retryingSub,
			attempt:     2,
			out:         Outcome{Classification: ClassTransportError},
			wantStatus:  StatusRetrying,
			wantRetryAt: timePtr(now.Add(2 * time.Minute)),
		},
		{
			name:       "final attempt fails terminally",
			sub:        retryingSub,
			attempt:    5,
			out:        Outcome{Classification: ClassHTTPError, StatusCode: 503},
			wantStatus: StatusFailed,
		},
		{
			name:       "retries disabled fails on the first error",
			sub:        noRetrySub,
			attempt:    1,
			out:        Outcome{Classification: ClassHTTPError, StatusCode: 500},
			wantStatus: StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Transition(tt.sub, tt.attempt, tt.out, now, backoff)

			if dec.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", dec.Status, tt.wantStatus)
			}
			if dec.DeactivateSub != tt.wantDeactivate {
				t.Errorf("deactivate = %v, want %v", dec.DeactivateSub, tt.wantDeactivate)
			}
			if dec.ReportSuccess != tt.wantSuccess {
				t.Errorf("report success = %v, want %v", dec.ReportSuccess, tt.wantSuccess)
			}

			if tt.wantRetryAt == nil {
				if dec.NextRetryAt != nil {
					t.Errorf("next retry = %v, want nil", dec.NextRetryAt)
				}
			} else {
				if dec.NextRetryAt == nil {
					t.Fatal("next retry = nil, want a timestamp")
				}
				if !dec.NextRetryAt.Equal(*tt.wantRetryAt) {
					t.Errorf("next retry = %v, want %v", dec.NextRetryAt, tt.wantRetryAt)
				}
			}
		})
	}
}

func TestApply(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success clears a stale error", func(t *testing.T) {
		d := &Delivery{Status: StatusRetrying, ErrorMessage: "webhook returned status 500"}
		out := Outcome{Classification: ClassOK, StatusCode: 200}

		apply(d, out, Decision{Status: StatusSuccess, ReportSuccess: true}, now)

		if d.Status != StatusSuccess {
			t.Errorf("status = %q, want %q", d.Status, StatusSuccess)
		}
		if d.ErrorMessage != "" {
			t.Errorf("error message = %q, want empty", d.ErrorMessage)
		}
		if d.ResponseCode == nil || *d.ResponseCode != 200 {
			t.Errorf("response code = %v, want 200", d.ResponseCode)
		}
		if d.LastAttemptAt == nil || !d.LastAttemptAt.Equal(now) {
			t.Errorf("last attempt = %v, want %v", d.LastAttemptAt, now)
		}
		if d.NextRetryAt != nil {
			t.Errorf("next retry = %v, want nil", d.NextRetryAt)
		}
	})

	t.Run("failure without a response leaves the code unset", func(t *testing.T) {
		d := &Delivery{Status: StatusPending}
		out := Outcome{Classification: ClassTimeout, Detail: "context deadline exceeded"}

		apply(d, out, Decision{Status: StatusFailed}, now)

		if d.ResponseCode != nil {
			t.Errorf("response code = %v, want nil", *d.ResponseCode)
		}
		if d.ErrorMessage != "context deadline exceeded" {
			t.Errorf("error message = %q", d.ErrorMessage)
		}
	})

	t.Run("retry carries the schedule onto the record", func(t *testing.T) {
		d := &Delivery{Status: StatusPending}
		at := now.Add(time.Minute)
		out := Outcome{Classification: ClassHTTPError, StatusCode: 500, Detail: "webhook returned status 500"}

		apply(d, out, Decision{Status: StatusRetrying, NextRetryAt: &at}, now)

		if d.Status != StatusRetrying {
			t.Errorf("status = %q, want %q", d.Status, StatusRetrying)
		}
		if d.NextRetryAt == nil || !d.NextRetryAt.Equal(at) {
			t.Errorf("next retry = %v, want %v", d.NextRetryAt, at)
		}
	})
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusRetrying, false},
		{StatusFailed, false},
		{StatusSuccess, true},
		{StatusDisabled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%q.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }
