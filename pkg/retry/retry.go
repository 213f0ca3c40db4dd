// Package retry implements the sink request pipeline's retry stage
// (SPEC_FULL.md §4.7.5): exponential backoff with jitter, bounded by a max
// duration, driven by a RetryLogic classifier that sorts a transport
// response into Successful / Retry / DontRetry.
//
// Grounded on internal/dispatcher/retry_manager.go's semaphore-bounded
// retry design (kept over dispatcher.go's unbounded goroutine-per-retry
// variant, since the bounded version is the one guarding against goroutine
// explosion under sustained failure), generalized from a fixed
// log-dispatch retry loop into a reusable Do() wrapping any sink's
// transport call.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Outcome is what a RetryLogic classifies a transport response into.
type Outcome int

const (
	Successful Outcome = iota
	Rejected           // non-retriable failure (4xx, partial-failure body)
	Retryable          // transient failure worth retrying (408/429/5xx, timeout, connection error)
)

// Logic classifies the result of one transport call. Response is whatever
// the sink's transport returns (an *http.Response, a sarama error, ...);
// err is the error the transport call itself returned, if any.
type Logic func(response interface{}, err error) (Outcome, error)

// Policy configures the backoff schedule.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxDuration    time.Duration // give up once cumulative elapsed exceeds this
	Multiplier     float64       // default 2.0
	Jitter         float64       // fraction of the computed delay to randomize, e.g. 0.2
}

func (p *Policy) setDefaults() {
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Jitter <= 0 {
		p.Jitter = 0.2
	}
}

// Call is the transport operation retried. It returns the raw response (for
// the Logic to classify) and any transport-level error.
type Call func(ctx context.Context) (response interface{}, err error)

// Do executes call, reclassifying and retrying on Retryable outcomes with
// exponential backoff+jitter until logic reports a terminal outcome, ctx is
// cancelled, or the policy's MaxDuration is exceeded.
//
// The returned Outcome is always terminal: Successful or Rejected on
// success/non-retriable-failure, or Retryable if retries were exhausted by
// MaxDuration (the caller's finalizer should then report Errored, per
// SPEC_FULL.md §4.7.6).
func Do(ctx context.Context, policy Policy, logic Logic, call Call) (Outcome, interface{}, error) {
	policy.setDefaults()
	backoff := policy.InitialBackoff
	start := time.Now()

	for {
		resp, err := call(ctx)
		outcome, classifyErr := logic(resp, err)

		switch outcome {
		case Successful, Rejected:
			return outcome, resp, classifyErr
		}

		if policy.MaxDuration > 0 && time.Since(start) >= policy.MaxDuration {
			return Retryable, resp, classifyErr
		}

		delay := jitter(backoff, policy.Jitter)
		select {
		case <-ctx.Done():
			return Retryable, resp, ctx.Err()
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * policy.Multiplier)
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
}

func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := float64(d) * frac
	return d - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// Limiter bounds the number of concurrently in-flight retrying calls,
// grounded on retry_manager.go's retrySemaphore: under sustained failure, a
// fixed number of goroutines retry while the rest queue rather than one
// goroutine being spawned per failed item.
type Limiter struct {
	sem chan struct{}
}

// NewLimiter returns a limiter admitting at most n concurrent Acquire
// holders.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{sem: make(chan struct{}, n)}
}

// Acquire blocks (subject to ctx) until a slot is free, returning a release
// function.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
