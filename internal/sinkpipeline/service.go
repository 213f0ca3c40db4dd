package sinkpipeline

import (
	"context"
	"fmt"
	"time"

	"flowcore/pkg/circuit"
	"flowcore/pkg/dlq"
	"flowcore/pkg/event"
	"flowcore/pkg/ratelimit"
	"flowcore/pkg/retry"
)

// Transport performs the sink-specific wire call for one Request, returning
// a raw response for Logic to classify.
type Transport func(ctx context.Context, req Request) (response interface{}, err error)

// ServiceConfig wires the retrying/rate-limited/concurrency-limited
// dispatch described in SPEC_FULL.md §4.7.5.
type ServiceConfig struct {
	Concurrency int // max in-flight requests; 0 disables the limiter
	Timeout     time.Duration
	RateLimiter *ratelimit.AdaptiveRateLimiter // optional
	Breaker     *circuit.Breaker               // optional
	RetryPolicy retry.Policy
	RetryLogic  retry.Logic
	// DLQ, if set, receives every event in a request whose dispatch
	// resolves as StatusRejected or StatusErrored, so a permanently
	// failed delivery isn't just dropped.
	DLQ *dlq.DeadLetterQueue
	// SinkName identifies this service's sink in DLQ entries.
	SinkName string
	// Trace, if set, brackets each Dispatch call with a span; it returns a
	// derived context and a function to call with the terminal error (nil
	// on success) once the call resolves.
	Trace func(ctx context.Context, partitionKey string) (context.Context, func(error))
}

// Service executes Requests against transport, applying concurrency
// limiting, rate limiting, circuit breaking, and retry-with-backoff, then
// resolves each request's finalizers with the terminal outcome.
type Service struct {
	cfg       ServiceConfig
	transport Transport
	limiter   *retry.Limiter
}

func NewService(cfg ServiceConfig, transport Transport) *Service {
	n := cfg.Concurrency
	if n <= 0 {
		n = 8
	}
	return &Service{cfg: cfg, transport: transport, limiter: retry.NewLimiter(n)}
}

// Dispatch sends req, blocking on the concurrency limiter and any
// configured rate limiter, then retrying per cfg.RetryPolicy/RetryLogic
// until a terminal outcome. It always resolves req's finalizers before
// returning.
func (s *Service) Dispatch(ctx context.Context, req Request) {
	status, dispatchErr := s.dispatch(ctx, req)
	if s.cfg.DLQ != nil && (status == event.StatusRejected || status == event.StatusErrored) {
		s.enqueueDLQ(req, status, dispatchErr)
	}
	req.Resolve(status)
}

// enqueueDLQ hands every event in a terminally-failed request to cfg.DLQ,
// logging rather than failing the dispatch if a given entry can't be
// persisted (the in-flight finalizer resolution must not block on it).
func (s *Service) enqueueDLQ(req Request, status event.Status, dispatchErr error) {
	msg := "sinkpipeline: dispatch failed"
	if dispatchErr != nil {
		msg = dispatchErr.Error()
	}
	errType := "errored"
	if status == event.StatusRejected {
		errType = "rejected"
	}
	for _, e := range req.Events {
		_ = s.cfg.DLQ.AddEntry(e, msg, errType, s.cfg.SinkName, 0, nil)
	}
}

func (s *Service) dispatch(ctx context.Context, req Request) (event.Status, error) {
	if s.cfg.Trace != nil {
		var end func(error)
		ctx, end = s.cfg.Trace(ctx, req.Key)
		var finalErr error
		defer func() { end(finalErr) }()
		status, err := s.dispatchTraced(ctx, req, &finalErr)
		return status, err
	}
	return s.dispatchInner(ctx, req)
}

func (s *Service) dispatchTraced(ctx context.Context, req Request, finalErr *error) (event.Status, error) {
	status, err := s.dispatchInner(ctx, req)
	if status != event.StatusDelivered {
		*finalErr = fmt.Errorf("sinkpipeline: dispatch resolved as %v", status)
	}
	return status, err
}

func (s *Service) dispatchInner(ctx context.Context, req Request) (event.Status, error) {
	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return event.StatusDropped, err
	}
	defer release()

	if s.cfg.RateLimiter != nil {
		if err := s.cfg.RateLimiter.Wait(ctx); err != nil {
			return event.StatusDropped, err
		}
	}

	call := func(callCtx context.Context) (interface{}, error) {
		if s.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, s.cfg.Timeout)
			defer cancel()
		}
		start := time.Now()
		var resp interface{}
		var callErr error
		run := func() error {
			resp, callErr = s.transport(callCtx, req)
			return callErr
		}
		if s.cfg.Breaker != nil {
			if breakerErr := s.cfg.Breaker.Execute(run); breakerErr != nil && callErr == nil {
				callErr = breakerErr
			}
		} else {
			run()
		}
		if s.cfg.RateLimiter != nil {
			s.cfg.RateLimiter.RecordLatency(time.Since(start))
		}
		return resp, callErr
	}

	logic := s.cfg.RetryLogic
	if logic == nil {
		logic = DefaultRetryLogic
	}
	outcome, _, lastErr := retry.Do(ctx, s.cfg.RetryPolicy, logic, call)
	switch outcome {
	case retry.Successful:
		return event.StatusDelivered, nil
	case retry.Rejected:
		return event.StatusRejected, lastErr
	default:
		return event.StatusErrored, lastErr
	}
}

// DefaultRetryLogic treats any transport error as retryable and any
// successful call (err == nil) as Successful. Sinks with richer response
// shapes (HTTP status codes, Kafka broker errors) supply their own Logic
// per SPEC_FULL.md §4.7.5's canonical status-code mapping.
func DefaultRetryLogic(_ interface{}, err error) (retry.Outcome, error) {
	if err == nil {
		return retry.Successful, nil
	}
	return retry.Retryable, err
}
