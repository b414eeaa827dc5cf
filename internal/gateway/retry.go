package gateway

import "time"

// RetryPolicy describes how the client retries rate-limited requests.
// The policy is explicit data plus a swappable sleep func rather than an
// inline loop, so tests can run the full retry path without real delays.
//
// Only rate-limit responses are retried. Any other failure from the
// remote service is surfaced immediately — retrying a 500 against a
// service we do not operate just burns our own quota.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Sleep performs the pause. Defaults to time.Sleep; tests inject a
	// recorder.
	Sleep func(time.Duration)
}

// DefaultRetryPolicy mirrors the reference behavior: 3 attempts with a
// short fixed delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Sleep:       time.Sleep,
	}
}

// normalized returns a copy with usable defaults filled in.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}
