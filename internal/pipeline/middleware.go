package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/lagmeter/internal/tracing"
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all failures retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

// retryHandler wraps a Handler with retry logic.
type retryHandler struct {
	inner  Handler
	policy RetryPolicy
}

// WithRetry wraps a Handler with retry capability. Ignored events are never retried.
func WithRetry(h Handler, policy RetryPolicy) Handler {
	if policy.MaxAttempts <= 1 {
		return h
	}
	return &retryHandler{
		inner:  h,
		policy: policy,
	}
}

func (r *retryHandler) Handle(ctx context.Context, ev *Event) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = r.inner.Handle(ctx, ev)
		if lastErr == nil || errors.Is(lastErr, ErrIgnored) {
			return lastErr
		}

		// Don't delay after the last attempt.
		if attempt < r.policy.MaxAttempts {
			if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(lastErr) {
				return lastErr
			}
			var delay time.Duration
			if r.policy.DelayFunc != nil {
				delay = r.policy.DelayFunc(attempt, lastErr)
			} else {
				delay = r.policy.Delay
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

// loggingHandler wraps a Handler with failure logging.
type loggingHandler struct {
	inner  Handler
	logger log.Logger
}

// WithLogging wraps a Handler to log failed events at warn level.
func WithLogging(h Handler, logger log.Logger) Handler {
	if logger == nil {
		return h
	}
	return &loggingHandler{
		inner:  h,
		logger: logger,
	}
}

func (l *loggingHandler) Handle(ctx context.Context, ev *Event) error {
	err := l.inner.Handle(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrIgnored):
		level.Debug(l.logger).Log("msg", "event ignored", "event", ev.ID)
	case interrupted(ctx, err):
		level.Debug(l.logger).Log("msg", "event interrupted", "event", ev.ID, "err", err)
	default:
		level.Warn(l.logger).Log("msg", "event failed", "event", ev.ID, "err", err)
	}
	return err
}

// tracingHandler wraps a Handler with one span per processing attempt.
type tracingHandler struct {
	inner  Handler
	tracer trace.Tracer
}

// WithTracing wraps a Handler so every call runs inside a span from tracer.
// While the handler runs, the event's headers carry the processing span so
// anything it forwards continues the trace. Headers are only written when a
// propagator is installed.
func WithTracing(h Handler, tracer trace.Tracer) Handler {
	if tracer == nil {
		return h
	}
	return &tracingHandler{
		inner:  h,
		tracer: tracer,
	}
}

func (t *tracingHandler) Handle(ctx context.Context, ev *Event) error {
	ctx = tracing.ExtractHeaders(ctx, ev.Headers)
	ctx, span := tracing.StartEventSpan(ctx, t.tracer, ev.Topic, ev.ID, ev.Time)
	ev.Headers = tracing.InjectHeaders(ctx, ev.Headers)
	err := t.inner.Handle(ctx, ev)
	if errors.Is(err, ErrIgnored) {
		tracing.EndSpan(span, nil, attribute.Bool("lagmeter.ignored", true))
		return err
	}
	tracing.EndSpan(span, err)
	return err
}
