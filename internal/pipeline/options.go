package pipeline

import (
	"time"

	"github.com/go-kit/log"
	"golang.org/x/time/rate"

	"github.com/torosent/lagmeter/internal/monitor"
)

// ArrivalModel selects how events are paced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Runner.
type Options struct {
	Concurrency    int                         // number of worker goroutines
	TotalEvents    int                         // events to process (0 means unlimited until duration/end)
	Duration       time.Duration               // overall time limit (0 means no duration cap)
	RatePerSecond  int                         // events per second pacing (0 means unlimited)
	ArrivalModel   ArrivalModel                // uniform (default) or poisson
	Source         Source                      // event source (required)
	Handler        Handler                     // event processor (required)
	Monitor        monitor.MessageMonitor      // notified around every event; nil disables tracking
	Logger         log.Logger                  // optional
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	PoissonSampler func() float64              // optional injection for tests
	RandomSeed     int64                       // seed for the default Poisson sampler
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.TotalEvents < 0 {
		o.TotalEvents = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
