package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]Record
	err     error
}

func (s *fakeSink) Publish(_ context.Context, records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]Record(nil), records...))
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var fixedNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestForwarder(t *testing.T, sink Sink, cfg ForwarderConfig, opts ...Option) *Forwarder {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	f, err := NewForwarder(sink, cfg, opts...)
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	return f
}

func TestNewForwarderValidation(t *testing.T) {
	if _, err := NewForwarder(nil, ForwarderConfig{BufferSize: 1}); !errors.Is(err, ErrMissingSink) {
		t.Fatalf("expected ErrMissingSink, got %v", err)
	}
	if _, err := NewForwarder(&fakeSink{}, ForwarderConfig{}); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("expected ErrInvalidBuffer, got %v", err)
	}
	f, err := NewForwarder(&fakeSink{}, ForwarderConfig{BufferSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(f.RunID()); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", f.RunID(), err)
	}
}

func TestObserveDropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "dropped"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "failed"})
	reg.MustRegister(dropped, failed)

	f := newTestForwarder(t, &fakeSink{}, ForwarderConfig{BufferSize: 2}, WithCounters(dropped, failed))

	for i := 0; i < 5; i++ {
		f.Observe(simulation.Sample{Minute: i})
	}

	if f.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", f.Dropped())
	}
	if got := promtest.ToFloat64(dropped); got != 3 {
		t.Fatalf("dropped counter = %v, want 3", got)
	}
}

func TestRunPublishesBatchesAndFlushesOnStop(t *testing.T) {
	sink := &fakeSink{}
	f := newTestForwarder(t, sink, ForwarderConfig{
		DeviceID:      "room101",
		BufferSize:    16,
		BatchSize:     4,
		FlushInterval: time.Hour,
	})
	for i := 0; i < 10; i++ {
		f.Observe(simulation.Sample{Minute: i, Temperature: 22})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.records()) < 8 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}

	got := sink.records()
	if len(got) != 10 {
		t.Fatalf("published %d records, want 10", len(got))
	}
	for i, r := range got {
		if r.Sample.Minute != i {
			t.Errorf("record %d has minute %d", i, r.Sample.Minute)
		}
		if r.RunID != f.RunID() || r.DeviceID != "room101" || !r.Timestamp.Equal(fixedNow) {
			t.Errorf("record %d not tagged: %+v", i, r)
		}
	}
}

func TestRunFlushesOnInterval(t *testing.T) {
	sink := &fakeSink{}
	f := newTestForwarder(t, sink, ForwarderConfig{
		BufferSize:    16,
		BatchSize:     100,
		FlushInterval: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	f.Observe(simulation.Sample{Minute: 7})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.records()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.records(); len(got) != 1 || got[0].Sample.Minute != 7 {
		t.Fatalf("expected the partial batch to be flushed, got %+v", got)
	}
}

func TestRunCountsFailures(t *testing.T) {
	sink := &fakeSink{err: errors.New("broker down")}
	f := newTestForwarder(t, sink, ForwarderConfig{BufferSize: 8, BatchSize: 8, FlushInterval: time.Hour})
	for i := 0; i < 3; i++ {
		f.Observe(simulation.Sample{Minute: i})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = f.Run(ctx)

	if f.Failed() != 3 {
		t.Fatalf("failed = %d, want 3", f.Failed())
	}
}

func TestNewKafkaSinkValidation(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{Topic: "t"}); !errors.Is(err, ErrNoBrokers) {
		t.Fatalf("expected ErrNoBrokers, got %v", err)
	}
	if _, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}}); !errors.Is(err, ErrNoTopic) {
		t.Fatalf("expected ErrNoTopic, got %v", err)
	}
	k, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "crac.samples"})
	if err != nil {
		t.Fatal(err)
	}
	w, ok := k.w.(*kafka.Writer)
	if !ok || w.Topic != "crac.samples" {
		t.Fatalf("unexpected writer %#v", k.w)
	}
}

func TestKafkaSinkPublish(t *testing.T) {
	fw := &fakeWriter{}
	k := &KafkaSink{w: fw}
	rec := Record{
		RunID:     "run-1",
		DeviceID:  "room101",
		Timestamp: fixedNow,
		Sample:    simulation.Sample{Minute: 42, Temperature: 23.1, Control: 61},
	}

	if err := k.Publish(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}
	m := fw.msgs[0]
	if string(m.Key) != "run-1" || !m.Time.Equal(fixedNow) {
		t.Fatalf("unexpected message key/time: %q %v", m.Key, m.Time)
	}
	var got Record
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Sample.Minute != 42 || got.Sample.Control != 61 {
		t.Fatalf("unexpected payload %+v", got)
	}

	fw.err = errors.New("leader not available")
	if err := k.Publish(context.Background(), rec); err == nil {
		t.Fatal("expected write error")
	}
	if err := k.Close(); err != nil || !fw.closed {
		t.Fatalf("Close() = %v closed=%v", err, fw.closed)
	}
}
