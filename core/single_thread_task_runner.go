package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadTaskRunner binds a dedicated goroutine to execute tasks sequentially.
// Every task posted to it runs on the same goroutine, one at a time, in post order.
//
// The dispatcher uses it as the completion-handling path: state owned by a
// SingleThreadTaskRunner (such as the result buffer of a Debouncer) is only
// touched from its goroutine and needs no locks.
type SingleThreadTaskRunner struct {
	// Unbounded FIFO; wake holds at most one pending signal
	queue *TaskQueue
	wake  chan struct{}

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool

	logger Logger

	// Metadata
	name string
	mu   sync.Mutex
}

// NewSingleThreadTaskRunner creates and starts a new SingleThreadTaskRunner.
// It immediately spawns a dedicated goroutine for task execution.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		queue:   NewTaskQueue(),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		logger:  NewNoOpLogger(),
	}

	go r.runLoop()

	return r
}

// Name returns the name of the task runner
func (r *SingleThreadTaskRunner) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// SetName sets the name of the task runner
func (r *SingleThreadTaskRunner) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// SetLogger sets the logger used to report task panics.
func (r *SingleThreadTaskRunner) SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

func (r *SingleThreadTaskRunner) getLogger() Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

// PostTask submits a task for execution. It never blocks, including when
// called from a task running on this runner. Tasks posted after Stop are dropped.
func (r *SingleThreadTaskRunner) PostTask(task Task) {
	if r.closed.Load() {
		return
	}

	r.queue.Push(task)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// PostDelayedTask submits a task that runs after delay.
// A zero or negative delay queues the task behind everything already posted.
//
// Uses time.AfterFunc, so the timer does not occupy the runner's goroutine
// while waiting.
func (r *SingleThreadTaskRunner) PostDelayedTask(task Task, delay time.Duration) *DelayedTaskHandle {
	handle := &DelayedTaskHandle{}
	if r.closed.Load() {
		handle.canceled.Store(true)
		return handle
	}

	guarded := handle.guard(task)
	if delay <= 0 {
		r.PostTask(guarded)
		return handle
	}

	// time.AfterFunc spawns a new goroutine when the timer fires,
	// we use PostTask to inject the task back into our main loop
	handle.timer = time.AfterFunc(delay, func() {
		r.PostTask(guarded)
	})
	return handle
}

// IsClosed returns true if the runner has been stopped
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop stops the runner and waits for the task currently running to return.
// Queued tasks that have not started are dropped.
func (r *SingleThreadTaskRunner) Stop() {
	r.once.Do(func() {
		r.closed.Store(true)
		r.cancel()
		<-r.stopped
	})
}

// runLoop is the core of this runner, it occupies a dedicated goroutine
func (r *SingleThreadTaskRunner) runLoop() {
	defer close(r.stopped)

	// Create context with taskRunnerKey for GetCurrentTaskRunner
	runCtx := context.WithValue(r.ctx, taskRunnerKey, r)

	for {
		select {
		case <-r.wake:
		case <-r.ctx.Done():
			r.queue.Clear()
			return
		}

		for r.ctx.Err() == nil {
			task, ok := r.queue.Pop()
			if !ok {
				break
			}
			r.runTask(runCtx, task)
		}
	}
}

func (r *SingleThreadTaskRunner) runTask(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.getLogger().Error("owner task panicked",
				F("runner", r.Name()),
				F("panic", fmt.Sprint(rec)),
				F("stack", string(debug.Stack())),
			)
		}
	}()
	task(ctx)
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all currently queued tasks have completed execution.
// This is implemented by posting a barrier task and waiting for it to execute.
//
// Note: Tasks posted after WaitIdle is called are not waited for, and delayed
// tasks whose timer has not fired yet are not queued.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return ErrRunnerClosed
	}

	done := make(chan struct{})

	r.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-r.stopped:
		return ErrRunnerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
