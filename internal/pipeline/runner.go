package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/torosent/lagmeter/internal/logging"
	"github.com/torosent/lagmeter/internal/monitor"
)

// Result captures execution summary.
type Result struct {
	Total     int64
	Succeeded int64
	Failed    int64
	Ignored   int64
	Duration  time.Duration
	SourceErr error // set when the source failed with anything other than exhaustion or cancellation
}

// Runner pulls events from a source and processes them concurrently.
type Runner struct {
	opt     Options
	arrival arrivalController
	monitor monitor.MessageMonitor
	logger  log.Logger
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:     opt,
		arrival: newArrivalController(opt),
		monitor: monitor.Multi(opt.Monitor),
		logger:  logging.OrNop(opt.Logger),
	}
}

func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var total, succeeded, failed, ignored int64
	var sourceErr error

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(ctx, r.opt.Duration)
		ctx = deadlineCtx
		defer deadlineCancel()
	}

	events := make(chan *Event, r.opt.Concurrency)
	schedulerDone := make(chan struct{})

	// Scheduler: serializes pacing and source reads so workers never overshoot the total.
	go func() {
		defer close(schedulerDone)
		defer close(events)
		for {
			if ctx.Err() != nil {
				return
			}
			if r.opt.TotalEvents > 0 && atomic.LoadInt64(&total) >= int64(r.opt.TotalEvents) {
				return
			}
			if err := r.arrival.Wait(ctx); err != nil {
				return
			}
			if r.opt.Source == nil {
				return
			}
			ev, err := r.opt.Source.Next(ctx)
			if err != nil {
				if !errors.Is(err, ErrSourceExhausted) && ctx.Err() == nil {
					sourceErr = err
					level.Error(r.logger).Log("msg", "source read failed", "err", err)
				}
				return
			}
			atomic.AddInt64(&total, 1)
			select {
			case events <- ev:
			case <-ctx.Done():
				atomic.AddInt64(&total, -1)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(r.opt.Concurrency)
	for i := 0; i < r.opt.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for ev := range events {
				// Events still buffered after cancellation were never admitted.
				if ctx.Err() != nil {
					atomic.AddInt64(&total, -1)
					continue
				}
				switch r.process(ctx, ev) {
				case outcomeSuccess:
					atomic.AddInt64(&succeeded, 1)
				case outcomeIgnored:
					atomic.AddInt64(&ignored, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}
	wg.Wait()
	<-schedulerDone

	return Result{
		Total:     atomic.LoadInt64(&total),
		Succeeded: atomic.LoadInt64(&succeeded),
		Failed:    atomic.LoadInt64(&failed),
		Ignored:   atomic.LoadInt64(&ignored),
		Duration:  time.Since(start),
		SourceErr: sourceErr,
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

// process admits ev, runs the handler and reports exactly one terminal outcome.
// An attempt cut short by the run's own cancellation completes as ignored.
func (r *Runner) process(ctx context.Context, ev *Event) outcome {
	cb := r.monitor.OnMessageIngested(ev)

	var err error
	if r.opt.Handler != nil {
		err = r.opt.Handler.Handle(ctx, ev)
	}

	switch {
	case err == nil:
		cb.ReportSuccess()
		return outcomeSuccess
	case errors.Is(err, ErrIgnored), interrupted(ctx, err):
		cb.ReportIgnored()
		return outcomeIgnored
	default:
		cb.ReportFailure(err)
		return outcomeFailure
	}
}

// interrupted reports whether err is the run's own cancellation rather than a
// processing failure.
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
