package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// GeneratorOptions configure a GeneratorSource.
type GeneratorOptions struct {
	Skew   time.Duration    // events are stamped this far behind the clock
	Jitter time.Duration    // stamps vary uniformly within +/- Jitter
	Limit  int              // number of events to produce (0 means unlimited)
	Seed   int64            // jitter RNG seed
	Topic  string           // copied onto every event
	Clock  func() time.Time // optional injection for tests
}

// GeneratorSource produces synthetic events. With a non-zero Jitter, later events
// can carry earlier timestamps than events produced before them.
type GeneratorSource struct {
	opts     GeneratorOptions
	mu       sync.Mutex
	rnd      *rand.Rand
	entropy  *ulid.MonotonicEntropy
	produced int64
}

// NewGeneratorSource creates a generator.
func NewGeneratorSource(opts GeneratorOptions) *GeneratorSource {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Jitter < 0 {
		opts.Jitter = -opts.Jitter
	}
	seeded := rand.New(rand.NewSource(opts.Seed))
	return &GeneratorSource{
		opts:    opts,
		rnd:     seeded,
		entropy: ulid.Monotonic(seeded, 0),
	}
}

// Next returns the next synthetic event.
func (g *GeneratorSource) Next(ctx context.Context) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.opts.Limit > 0 && g.produced >= int64(g.opts.Limit) {
		return nil, ErrSourceExhausted
	}

	now := g.opts.Clock()
	stamp := now.Add(-g.opts.Skew)
	if g.opts.Jitter > 0 {
		offset := time.Duration(g.rnd.Int63n(2*int64(g.opts.Jitter)+1)) - g.opts.Jitter
		stamp = stamp.Add(offset)
	}

	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	offset := g.produced
	g.produced++
	return &Event{
		ID:     id.String(),
		Time:   stamp,
		Topic:  g.opts.Topic,
		Offset: offset,
	}, nil
}

// Produced returns how many events were generated so far.
func (g *GeneratorSource) Produced() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.produced
}

// Close is a no-op.
func (g *GeneratorSource) Close() error {
	return nil
}
