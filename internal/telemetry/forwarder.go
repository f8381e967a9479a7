package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
)

type ForwarderConfig struct {
	DeviceID      string
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Forwarder decouples the control loop from the sink. Observe never blocks: when the
// queue is full the sample is dropped and counted.
type Forwarder struct {
	sink  Sink
	cfg   ForwarderConfig
	runID string
	log   *zap.Logger
	now   func() time.Time

	queue chan Record

	dropped atomic.Uint64
	failed  atomic.Uint64

	droppedC prometheus.Counter
	failedC  prometheus.Counter
}

type Option func(*Forwarder)

func WithLogger(l *zap.Logger) Option {
	return func(f *Forwarder) { f.log = l }
}

// WithCounters mirrors the drop and failure counts into Prometheus.
func WithCounters(dropped, failed prometheus.Counter) Option {
	return func(f *Forwarder) {
		f.droppedC = dropped
		f.failedC = failed
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Forwarder) { f.now = now }
}

func NewForwarder(sink Sink, cfg ForwarderConfig, opts ...Option) (*Forwarder, error) {
	if sink == nil {
		return nil, ErrMissingSink
	}
	if cfg.BufferSize <= 0 {
		return nil, ErrInvalidBuffer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	f := &Forwarder{
		sink:  sink,
		cfg:   cfg,
		runID: uuid.NewString(),
		log:   zap.NewNop(),
		now:   time.Now,
		queue: make(chan Record, cfg.BufferSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With(zap.String("run_id", f.runID))
	return f, nil
}

func (f *Forwarder) RunID() string { return f.runID }

func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

func (f *Forwarder) Failed() uint64 { return f.failed.Load() }

func (f *Forwarder) Observe(s simulation.Sample) {
	r := Record{RunID: f.runID, DeviceID: f.cfg.DeviceID, Timestamp: f.now(), Sample: s}
	select {
	case f.queue <- r:
	default:
		f.dropped.Add(1)
		if f.droppedC != nil {
			f.droppedC.Inc()
		}
	}
}

// Run drains the queue into the sink in batches until ctx is done, then flushes
// what is still queued.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, f.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			batch = f.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.flush(flushCtx, batch)
			cancel()
			return ctx.Err()

		case r := <-f.queue:
			batch = append(batch, r)
			if len(batch) >= f.cfg.BatchSize {
				f.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			f.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (f *Forwarder) drain(batch []Record) []Record {
	for {
		select {
		case r := <-f.queue:
			batch = append(batch, r)
		default:
			return batch
		}
	}
}

func (f *Forwarder) flush(ctx context.Context, batch []Record) {
	if len(batch) == 0 {
		return
	}
	if err := f.sink.Publish(ctx, batch...); err != nil {
		n := uint64(len(batch))
		f.failed.Add(n)
		if f.failedC != nil {
			f.failedC.Add(float64(n))
		}
		f.log.Warn("telemetry publish failed", zap.Int("records", len(batch)), zap.Error(err))
		return
	}
	f.log.Debug("telemetry published", zap.Int("records", len(batch)))
}
