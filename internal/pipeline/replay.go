package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/torosent/lagmeter/internal/feeder"
)

// headerFieldPrefix marks record fields that are copied into event headers.
const headerFieldPrefix = "header."

// ReplayOptions configure a ReplaySource.
type ReplayOptions struct {
	IDField         string // defaults to "id"; missing IDs become "replay-<n>"
	TimeField       string // defaults to "timestamp"
	TopicField      string // optional per-record topic
	KeyField        string
	Topic           string // used when TopicField is unset or empty on a record
	PayloadTemplate string // {{field}} placeholders are filled from the record
	// Rebase shifts every recorded time by the same amount so the first
	// event is stamped at the moment it is replayed.
	Rebase bool
	Clock  func() time.Time
}

// ReplaySource turns recorded events into pipeline events, once each, in file order.
type ReplaySource struct {
	feeder   feeder.Feeder
	opts     ReplayOptions
	mu       sync.Mutex
	shift    time.Duration
	anchored bool
	replayed int64
}

// NewReplaySource wraps f.
func NewReplaySource(f feeder.Feeder, opts ReplayOptions) *ReplaySource {
	if opts.IDField == "" {
		opts.IDField = "id"
	}
	if opts.TimeField == "" {
		opts.TimeField = "timestamp"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &ReplaySource{feeder: f, opts: opts}
}

// Next returns the next recorded event. A record without a readable time
// field is an error and stops the run.
func (s *ReplaySource) Next(ctx context.Context) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.feeder.Next(ctx)
	if err != nil {
		if errors.Is(err, feeder.ErrExhausted) {
			return nil, ErrSourceExhausted
		}
		return nil, err
	}

	offset := s.replayed
	s.replayed++

	stamp, ok := parseTimestamp(rec[s.opts.TimeField])
	if !ok {
		return nil, fmt.Errorf("replay record %d: field %q is not a timestamp: %q", offset, s.opts.TimeField, rec[s.opts.TimeField])
	}
	if s.opts.Rebase {
		if !s.anchored {
			s.shift = s.opts.Clock().Sub(stamp)
			s.anchored = true
		}
		stamp = stamp.Add(s.shift)
	}

	ev := &Event{
		ID:     rec[s.opts.IDField],
		Time:   stamp,
		Topic:  s.opts.Topic,
		Offset: offset,
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("replay-%d", offset)
	}
	if s.opts.TopicField != "" && rec[s.opts.TopicField] != "" {
		ev.Topic = rec[s.opts.TopicField]
	}
	if s.opts.KeyField != "" && rec[s.opts.KeyField] != "" {
		ev.Key = []byte(rec[s.opts.KeyField])
	}
	if s.opts.PayloadTemplate != "" {
		ev.Payload = []byte(feeder.SubstitutePlaceholders(s.opts.PayloadTemplate, rec))
	}
	for field, value := range rec {
		if name, ok := strings.CutPrefix(field, headerFieldPrefix); ok && name != "" {
			if ev.Headers == nil {
				ev.Headers = make(map[string]string)
			}
			ev.Headers[name] = value
		}
	}
	return ev, nil
}

// Replayed returns how many events have been handed out.
func (s *ReplaySource) Replayed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayed
}

// Close releases the underlying feeder.
func (s *ReplaySource) Close() error {
	return s.feeder.Close()
}
