package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ErrIgnored marks an event the handler chose not to process.
var ErrIgnored = errors.New("event ignored")

// Handler processes a single event.
// Return nil on success, ErrIgnored to skip the event, or any other error on failure.
type Handler interface {
	Handle(ctx context.Context, ev *Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev *Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

// ProcessingError is the failure produced by SimulatedHandler.
type ProcessingError struct {
	EventID string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing event %s failed", e.EventID)
}

// SimulatedOptions configure a SimulatedHandler.
type SimulatedOptions struct {
	Delay       time.Duration // base processing time
	Jitter      time.Duration // extra processing time drawn uniformly from [0, Jitter]
	FailureRate float64       // fraction of events that fail, 0..1
	IgnoreRate  float64       // fraction of events that are ignored, 0..1
	Seed        int64
}

// SimulatedHandler stands in for real work: it sleeps and then succeeds, fails or ignores.
type SimulatedHandler struct {
	opts SimulatedOptions
	mu   sync.Mutex
	rnd  *rand.Rand
}

// NewSimulatedHandler creates a handler with a seeded RNG.
func NewSimulatedHandler(opts SimulatedOptions) *SimulatedHandler {
	return &SimulatedHandler{
		opts: opts,
		rnd:  rand.New(rand.NewSource(opts.Seed)),
	}
}

func (h *SimulatedHandler) Handle(ctx context.Context, ev *Event) error {
	delay, roll := h.sample()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	switch {
	case roll < h.opts.FailureRate:
		return &ProcessingError{EventID: ev.ID}
	case roll < h.opts.FailureRate+h.opts.IgnoreRate:
		return ErrIgnored
	}
	return nil
}

func (h *SimulatedHandler) sample() (time.Duration, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delay := h.opts.Delay
	if h.opts.Jitter > 0 {
		delay += time.Duration(h.rnd.Int63n(int64(h.opts.Jitter) + 1))
	}
	return delay, h.rnd.Float64()
}
