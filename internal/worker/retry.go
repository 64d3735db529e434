package worker

import (
	"math"
	"math/rand/v2"
	"time"

	"stayfinder/internal/config"
)

// RetryPolicy spaces out attempts to mirror a booking change into the spreadsheet.
// Delays grow by BackoffFactor from InitialDelay up to MaxDelay, then move by up to
// Jitter (a fraction of the delay) in either direction.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64

	// random returns a value in [0, 1); nil means math/rand.
	random func() float64
}

// RetryPolicyFromConfig reads worker.sync_retry.
func RetryPolicyFromConfig(cfg config.SyncRetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
		Jitter:        cfg.Jitter,
	}.withDefaults()
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.BackoffFactor < 1 {
		r.BackoffFactor = 2
	}
	r.Jitter = math.Min(math.Max(r.Jitter, 0), 1)
	return r
}

// exhausted reports whether a task that just failed its attempt-th try goes to the dead letter.
func (r RetryPolicy) exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay is the wait before retry number attempt (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	delay := math.Min(float64(r.InitialDelay)*math.Pow(r.BackoffFactor, float64(attempt-1)), float64(r.MaxDelay))
	if r.Jitter > 0 {
		random := r.random
		if random == nil {
			random = rand.Float64
		}
		delay *= 1 + r.Jitter*(2*random()-1)
	}

	d := time.Duration(delay)
	if d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = r.InitialDelay
	}
	return d
}
