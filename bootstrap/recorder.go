package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/metergate/adapters/metrics"
	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
	"github.com/rs/zerolog"
)

// RecorderOptions tunes the batch recorder.
type RecorderOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   int           // per-batch write attempts before dropping
	RetryBackoff  time.Duration // initial backoff, doubles per attempt
	WriteTimeout  time.Duration
}

func (o RecorderOptions) withDefaults() RecorderOptions {
	if o.BatchSize == 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval == 0 {
		o.FlushInterval = 10 * time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = 250 * time.Millisecond
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 30 * time.Second
	}
	return o
}

// BatchRecorder buffers usage events and writes them to the store in
// batches. Record never blocks on storage; failed batches are retried
// with exponential backoff and dropped (with a log line) when attempts
// run out.
type BatchRecorder struct {
	store   ports.EventStore
	opts    RecorderOptions
	metrics *metrics.Collector
	logger  zerolog.Logger

	mu     sync.Mutex
	buffer []usage.Event

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewBatchRecorder creates a recorder and starts its flush loop.
func NewBatchRecorder(store ports.EventStore, opts RecorderOptions, m *metrics.Collector, logger zerolog.Logger) *BatchRecorder {
	opts = opts.withDefaults()
	r := &BatchRecorder{
		store:   store,
		opts:    opts,
		metrics: m,
		logger:  logger,
		buffer:  make([]usage.Event, 0, opts.BatchSize),
		stopCh:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record queues a usage event for processing.
func (r *BatchRecorder) Record(e usage.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, e)
	if r.metrics != nil {
		r.metrics.RecorderQueued.Set(float64(len(r.buffer)))
	}

	if len(r.buffer) >= r.opts.BatchSize {
		r.flushLocked()
	}
}

// Flush writes all queued events synchronously.
func (r *BatchRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	events := r.take()
	r.mu.Unlock()

	return r.writeBatch(ctx, events)
}

// take detaches the buffer; caller must hold r.mu.
func (r *BatchRecorder) take() []usage.Event {
	if len(r.buffer) == 0 {
		return nil
	}
	events := make([]usage.Event, len(r.buffer))
	copy(events, r.buffer)
	r.buffer = r.buffer[:0]
	if r.metrics != nil {
		r.metrics.RecorderQueued.Set(0)
	}
	return events
}

// flushLocked detaches the buffer and writes it in the background so
// the recording path never blocks on storage. Caller must hold r.mu.
func (r *BatchRecorder) flushLocked() {
	events := r.take()
	if events == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
		defer cancel()
		r.writeBatch(ctx, events)
	}()
}

// writeBatch writes one batch with capped exponential backoff.
// Exhausted batches are dropped and logged, never retried again.
func (r *BatchRecorder) writeBatch(ctx context.Context, events []usage.Event) error {
	if len(events) == 0 {
		return nil
	}

	var err error
	backoff := r.opts.RetryBackoff
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		err = r.store.RecordBatch(ctx, events)
		if err == nil {
			if r.metrics != nil {
				r.metrics.FlushBatches.Inc()
			}
			return nil
		}
		if r.metrics != nil {
			r.metrics.FlushErrors.Inc()
		}
		if attempt == r.opts.MaxAttempts {
			break
		}
		if r.metrics != nil {
			r.metrics.FlushRetries.Inc()
		}
		r.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("batch_size", len(events)).
			Msg("usage batch write failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			err = ctx.Err()
			attempt = r.opts.MaxAttempts
		}
		backoff *= 2
	}

	if r.metrics != nil {
		r.metrics.EventsDropped.Add(float64(len(events)))
	}
	r.logger.Error().Err(err).
		Int("batch_size", len(events)).
		Msg("usage batch dropped after retries exhausted")
	return err
}

func (r *BatchRecorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			r.flushLocked()
			r.mu.Unlock()
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the flush loop and drains remaining events.
func (r *BatchRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
		defer cancel()

		r.mu.Lock()
		events := r.take()
		r.mu.Unlock()
		err = r.writeBatch(ctx, events)
	})
	return err
}

// Ensure interface compliance.
var _ ports.UsageRecorder = (*BatchRecorder)(nil)
