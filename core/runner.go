package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const idlePollInterval = 2 * time.Millisecond

// Channels are the caller-facing ends of a Runner.
type Channels struct {
	// Inbound delivers task batches. May be nil when the caller only uses
	// Runner.Dispatch.
	Inbound <-chan TaskBatch

	// Outbound receives flushed result batches. Required.
	Outbound chan<- ResultBatch
}

// Runner is one dispatch engine instance: it owns a Registry, a Dispatcher
// and a Debouncer for its whole lifetime. Several runners can live in one
// process without sharing anything.
type Runner struct {
	name     string
	registry *Registry
	channels Channels
	logger   Logger

	owner      *SingleThreadTaskRunner
	dispatcher *Dispatcher
	debouncer  *Debouncer
	history    *executionHistory

	ctx    context.Context
	cancel context.CancelFunc

	started  atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once
	consumed chan struct{}
}

// NewRunner builds a Runner around registry. Panics if registry or the
// outbound channel is nil.
func NewRunner(registry *Registry, channels Channels, opts ...Option) *Runner {
	if registry == nil {
		panic("Runner: registry must not be nil")
	}
	if channels.Outbound == nil {
		panic("Runner: outbound channel must not be nil")
	}

	cfg := defaultRunnerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = "runner-" + NewID()
	}

	owner := NewSingleThreadTaskRunner()
	owner.SetName(cfg.name + "/results")
	owner.SetLogger(cfg.logger)

	debouncer := NewDebouncer(owner, channels.Outbound, cfg.threshold, cfg.window)
	debouncer.metrics = cfg.metrics
	debouncer.runnerName = cfg.name

	history := newExecutionHistory(cfg.historyCapacity)
	ctx, cancel := context.WithCancel(context.Background())

	dispatcher := &Dispatcher{
		ctx:        ctx,
		registry:   registry,
		classifier: NewClassifier(cfg.includeRaw),
		debouncer:  debouncer,
		policy:     cfg.policy,
		trace:      cfg.trace,
		logger:     cfg.logger,
		metrics:    cfg.metrics,
		history:    history,
		runnerName: cfg.name,
	}

	return &Runner{
		name:       cfg.name,
		registry:   registry,
		channels:   channels,
		logger:     cfg.logger,
		owner:      owner,
		dispatcher: dispatcher,
		debouncer:  debouncer,
		history:    history,
		ctx:        ctx,
		cancel:     cancel,
		consumed:   make(chan struct{}),
	}
}

// Name returns the runner name.
func (r *Runner) Name() string {
	return r.name
}

// Registry returns the immutable registry the runner dispatches against.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Start consumes the inbound channel until it is closed, ctx ends or the
// runner is stopped. It returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	if r.closed.Load() {
		return ErrRunnerClosed
	}
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerStarted
	}
	if r.channels.Inbound == nil {
		close(r.consumed)
		return nil
	}

	r.logger.Info("runner started", F("runner", r.name), F("functions", r.registry.Len()))
	go r.consume(ctx)
	return nil
}

func (r *Runner) consume(ctx context.Context) {
	defer close(r.consumed)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case batch, ok := <-r.channels.Inbound:
			if !ok {
				r.logger.Debug("inbound channel closed", F("runner", r.name))
				return
			}
			r.dispatcher.Dispatch(batch)
		}
	}
}

// Dispatch submits batch directly, bypassing the inbound channel.
func (r *Runner) Dispatch(batch TaskBatch) error {
	if r.closed.Load() {
		return ErrRunnerClosed
	}
	r.dispatcher.Dispatch(batch)
	return nil
}

// Stop cancels the context handed to running tasks and stops the result
// owner. Results completing after Stop are dropped; buffered results that
// were not flushed yet are discarded.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		r.owner.Stop()
		if r.started.Load() {
			<-r.consumed
		}
		r.logger.Info("runner stopped", F("runner", r.name))
	})
}

// IsClosed returns true once Stop has been called.
func (r *Runner) IsClosed() bool {
	return r.closed.Load()
}

// WaitIdle blocks until no task is in flight and every result has been
// flushed to the outbound channel.
func (r *Runner) WaitIdle(ctx context.Context) error {
	if r.closed.Load() {
		return ErrRunnerClosed
	}

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if r.dispatcher.InFlight() == 0 {
			idle, err := r.debouncer.isIdle(ctx)
			if err != nil {
				return err
			}
			if idle && r.dispatcher.InFlight() == 0 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns current observability data for this runner.
func (r *Runner) Stats() RunnerStats {
	stats := RunnerStats{
		Name:           r.name,
		InFlight:       r.dispatcher.InFlight(),
		Buffered:       r.debouncer.Buffered(),
		Dispatched:     r.dispatcher.dispatched.Load(),
		FlushedBatches: r.debouncer.FlushedBatches(),
		Closed:         r.IsClosed(),
	}
	if last, ok := r.history.Last(); ok {
		stats.LastTaskName = last.Function
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns completed task execution records in newest-first order.
func (r *Runner) RecentTasks(limit int) []TaskExecutionRecord {
	return r.history.Recent(limit)
}
