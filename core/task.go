package core

import (
	"context"
	"sync/atomic"
	"time"
)

// Task is the unit of work (Closure) posted to a TaskRunner.
type Task func(ctx context.Context)

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================
type TaskRunner interface {
	PostTask(task Task)
	PostDelayedTask(task Task, delay time.Duration) *DelayedTaskHandle
}

// DelayedTaskHandle controls a task posted with a delay.
// Cancel is effective until the task starts running on its runner.
type DelayedTaskHandle struct {
	timer    *time.Timer
	canceled atomic.Bool
}

// Cancel prevents the task from running. It returns false if the handle was
// already canceled.
func (h *DelayedTaskHandle) Cancel() bool {
	if h == nil {
		return false
	}
	if !h.canceled.CompareAndSwap(false, true) {
		return false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	return true
}

// IsCanceled reports whether Cancel has been called.
func (h *DelayedTaskHandle) IsCanceled() bool {
	return h != nil && h.canceled.Load()
}

// guard wraps task so it becomes a no-op once the handle is canceled.
func (h *DelayedTaskHandle) guard(task Task) Task {
	return func(ctx context.Context) {
		if h.canceled.Load() {
			return
		}
		task(ctx)
	}
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
