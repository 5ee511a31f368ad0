package webhook

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before the next retry. Delays grow
// exponentially with the attempt number and are clamped to Ceiling so a
// persistently failing subscriber never produces tight retry loops.
type BackoffPolicy struct {
	Base       time.Duration // delay after the first failed attempt
	Multiplier float64
	Ceiling    time.Duration
	JitterPct  float64 // 0 disables jitter; tests rely on that
}

// DefaultBackoff is the documented production policy: one minute, doubling,
// capped at one hour, 20% jitter.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:       time.Minute,
		Multiplier: 2,
		Ceiling:    time.Hour,
		JitterPct:  0.2,
	}
}

// Delay returns the backoff for the given 1-based attempt number.
// Formula: min(Base * Multiplier^(attempt-1), Ceiling), jittered by
// +/- JitterPct. The result is always positive so a same-instant retry is
// impossible.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base <= 0 {
		base = time.Minute
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2
	}
	ceiling := p.Ceiling
	if ceiling <= 0 {
		ceiling = time.Hour
	}

	d := float64(base) * math.Pow(mult, float64(attempt-1))
	if d > float64(ceiling) {
		d = float64(ceiling)
	}
	if p.JitterPct > 0 {
		j := 1 + (rand.Float64()*2-1)*p.JitterPct
		if j < 0.1 {
			j = 0.1
		}
		d *= j
	}
	if d < float64(time.Second) {
		d = float64(time.Second)
	}
	return time.Duration(d)
}

// Decision is the state machine's verdict for one classified attempt.
type Decision struct {
	Status        Status
	NextRetryAt   *time.Time // set iff Status is retrying
	DeactivateSub bool       // 410: instruct the catalog to disable the subscriber
	ReportSuccess bool       // success counter for the lifecycle bridge
}

// Transition applies the delivery state machine to one outcome.
//
// Rules, in order: 2xx succeeds; 410 disables the subscriber and bypasses
// retry policy entirely; anything else retries while the subscriber's policy
// allows (RetryEnabled and AttemptNumber < MaxRetries) and fails terminally
// once it does not.
func Transition(sub Subscriber, attemptNumber int, out Outcome, now time.Time, backoff BackoffPolicy) Decision {
	switch out.Classification {
	case ClassOK:
		return Decision{Status: StatusSuccess, ReportSuccess: true}
	case ClassGone:
		return Decision{Status: StatusDisabled, DeactivateSub: true}
	}

	if sub.RetryEnabled && attemptNumber < sub.MaxRetries {
		at := now.Add(backoff.Delay(attemptNumber))
		return Decision{Status: StatusRetrying, NextRetryAt: &at}
	}
	return Decision{Status: StatusFailed}
}

// apply folds a decision and its outcome into the delivery record.
func apply(d *Delivery, out Outcome, dec Decision, now time.Time) {
	d.Status = dec.Status
	d.NextRetryAt = dec.NextRetryAt
	d.LastAttemptAt = &now
	if out.StatusCode != 0 {
		code := out.StatusCode
		d.ResponseCode = &code
	}
	if dec.Status == StatusSuccess {
		d.ErrorMessage = ""
	} else {
		d.ErrorMessage = out.Detail
	}
}
