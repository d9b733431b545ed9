package core

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	// DefaultDebounceThreshold is the batch size above which results are grouped.
	DefaultDebounceThreshold = 10

	// DefaultDebounceWindow is the quiescence window used for large batches.
	DefaultDebounceWindow = 20 * time.Millisecond
)

// Debouncer accumulates results and writes them to the outbound channel as
// one ResultBatch once no new result has arrived for the flush window.
//
// SAFETY CONTRACT: buffer and pending are only accessed from tasks running on
// owner, so appends and flushes are serialized without locks. Enqueue is the
// only entry point and may be called from any goroutine.
type Debouncer struct {
	owner     *SingleThreadTaskRunner
	outbound  chan<- ResultBatch
	threshold int
	window    time.Duration

	metrics    Metrics
	runnerName string

	buffer  ResultBatch
	pending *DelayedTaskHandle

	buffered atomic.Int64
	flushed  atomic.Int64
}

// NewDebouncer creates a Debouncer whose buffer is owned by owner.
func NewDebouncer(owner *SingleThreadTaskRunner, outbound chan<- ResultBatch, threshold int, window time.Duration) *Debouncer {
	if owner == nil {
		panic("Debouncer: owner must not be nil")
	}
	if outbound == nil {
		panic("Debouncer: outbound channel must not be nil")
	}
	return &Debouncer{
		owner:     owner,
		outbound:  outbound,
		threshold: threshold,
		window:    window,
		metrics:   &NilMetrics{},
	}
}

// WindowFor returns the flush window for results of a batch of batchSize
// definitions: the configured window for large batches, zero otherwise.
func (d *Debouncer) WindowFor(batchSize int) time.Duration {
	if batchSize > d.threshold {
		return d.window
	}
	return 0
}

// Enqueue hands result to the owner goroutine. batchSize is the size of the
// TaskBatch the result originates from and selects the flush window.
func (d *Debouncer) Enqueue(result TaskResult, batchSize int) {
	window := d.WindowFor(batchSize)
	d.owner.PostTask(func(ctx context.Context) {
		d.append(result, window)
	})
}

// append runs on owner: buffer the result, cancel the pending flush and
// schedule a new one.
func (d *Debouncer) append(result TaskResult, window time.Duration) {
	d.buffer = append(d.buffer, result)
	d.buffered.Store(int64(len(d.buffer)))

	d.pending.Cancel()
	d.pending = d.owner.PostDelayedTask(d.flush, window)
}

// flush runs on owner: emit the whole buffer, then start a fresh one.
func (d *Debouncer) flush(ctx context.Context) {
	d.pending = nil
	if len(d.buffer) == 0 {
		return
	}

	batch := d.buffer
	d.buffer = nil
	d.buffered.Store(0)

	select {
	case d.outbound <- batch:
		d.flushed.Add(1)
		d.metrics.RecordFlush(d.runnerName, len(batch))
	case <-ctx.Done():
	}
}

// isIdle reports, from the owner goroutine, whether nothing is buffered and
// no flush is scheduled.
func (d *Debouncer) isIdle(ctx context.Context) (bool, error) {
	answer := make(chan bool, 1)
	d.owner.PostTask(func(context.Context) {
		answer <- len(d.buffer) == 0 && d.pending == nil
	})

	select {
	case idle := <-answer:
		return idle, nil
	case <-d.owner.stopped:
		return false, ErrRunnerClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Buffered returns the number of results waiting for the next flush.
func (d *Debouncer) Buffered() int {
	return int(d.buffered.Load())
}

// FlushedBatches returns the number of ResultBatches written so far.
func (d *Debouncer) FlushedBatches() int64 {
	return d.flushed.Load()
}
