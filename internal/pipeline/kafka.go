package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/tidwall/gjson"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/torosent/lagmeter/internal/logging"
)

// KafkaOptions configure a KafkaSource.
type KafkaOptions struct {
	Brokers        []string
	Topic          string
	Group          string // consumer group; empty consumes without a group
	ClientID       string
	TimestampField string // gjson path to an epoch-ms number or RFC 3339 string in the payload
	ResetToStart   bool   // start from the earliest offset when no commit exists
	Buffer         int    // records buffered between the poller and Next
}

// KafkaSource consumes records from a Kafka topic.
type KafkaSource struct {
	client         *kgo.Client
	records        chan *kgo.Record
	timestampField string
	logger         log.Logger
	cancel         context.CancelFunc
	done           chan struct{}
	closeOnce      sync.Once
}

// NewKafkaSource connects a franz-go client and starts polling in the background.
func NewKafkaSource(opts KafkaOptions, logger log.Logger) (*KafkaSource, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if opts.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}

	client, err := kgo.NewClient(kafkaClientOpts(opts)...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &KafkaSource{
		client:         client,
		records:        make(chan *kgo.Record, opts.Buffer),
		timestampField: opts.TimestampField,
		logger:         log.With(logging.OrNop(logger), "component", "kafka-source", "topic", opts.Topic),
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go s.poll(ctx)
	return s, nil
}

func kafkaClientOpts(opts KafkaOptions) []kgo.Opt {
	kopts := []kgo.Opt{
		kgo.SeedBrokers(opts.Brokers...),
		kgo.ConsumeTopics(opts.Topic),
	}
	if opts.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(opts.ClientID))
	}
	if opts.Group != "" {
		kopts = append(kopts, kgo.ConsumerGroup(opts.Group))
	}
	if opts.ResetToStart {
		kopts = append(kopts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}
	return kopts
}

func (s *KafkaSource) poll(ctx context.Context) {
	defer close(s.done)
	defer close(s.records)

	for {
		fetches := s.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			level.Warn(s.logger).Log("msg", "fetch failed", "partition", partition, "err", err)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			select {
			case s.records <- iter.Next():
			case <-ctx.Done():
				return
			}
		}
	}
}

// Next returns the next consumed record as an event.
func (s *KafkaSource) Next(ctx context.Context) (*Event, error) {
	select {
	case rec, ok := <-s.records:
		if !ok {
			return nil, ErrSourceExhausted
		}
		return eventFromRecord(rec, s.timestampField), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops polling and closes the client.
func (s *KafkaSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.client.Close()
		level.Debug(s.logger).Log("msg", "kafka source closed")
	})
	return nil
}

func eventFromRecord(rec *kgo.Record, timestampField string) *Event {
	stamp := rec.Timestamp
	if timestampField != "" {
		if ts, ok := payloadTimestamp(rec.Value, timestampField); ok {
			stamp = ts
		}
	}
	var headers map[string]string
	if len(rec.Headers) > 0 {
		headers = make(map[string]string, len(rec.Headers))
		for _, h := range rec.Headers {
			headers[h.Key] = string(h.Value)
		}
	}
	return &Event{
		ID:        rec.Topic + "/" + strconv.FormatInt(int64(rec.Partition), 10) + "/" + strconv.FormatInt(rec.Offset, 10),
		Time:      stamp,
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Payload:   rec.Value,
		Headers:   headers,
	}
}

// payloadTimestamp reads path from a JSON payload as an epoch-ms number or an RFC 3339 string.
func payloadTimestamp(payload []byte, path string) (time.Time, bool) {
	if !gjson.ValidBytes(payload) {
		return time.Time{}, false
	}
	res := gjson.GetBytes(payload, path)
	switch res.Type {
	case gjson.Number:
		return time.UnixMilli(res.Int()), true
	case gjson.String:
		return parseTimestamp(res.Str)
	}
	return time.Time{}, false
}
