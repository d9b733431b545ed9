package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

func (l *recordingLogger) add(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.add("error", msg, fields) }

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.msg == msg {
			n++
		}
	}
	return n
}

func double(ctx context.Context, x float64) (float64, error) {
	return x * 2, nil
}

func boom(ctx context.Context, args any) (any, error) {
	return nil, errors.New("boom")
}

func sleepFor(d time.Duration) Implementation {
	return ImplementationFunc(func(ctx context.Context, args any) (any, error) {
		select {
		case <-time.After(d):
			return "slept", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func immediate(value any) Implementation {
	return ImplementationFunc(func(ctx context.Context, args any) (any, error) {
		return value, nil
	})
}

func mustRegistry(t *testing.T, tasks map[string]Implementation) *Registry {
	t.Helper()
	reg, err := BuildRegistry(nil, nil, tasks)
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	return reg
}

// newTestRunner builds a started runner and its outbound channel.
func newTestRunner(t *testing.T, tasks map[string]Implementation, opts ...Option) (*Runner, chan ResultBatch) {
	t.Helper()
	out := make(chan ResultBatch, 64)
	r := NewRunner(mustRegistry(t, tasks), Channels{Outbound: out}, opts...)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(r.Stop)
	return r, out
}

// collect reads result batches until want results arrived or timeout passes.
func collect(t *testing.T, out <-chan ResultBatch, want int, timeout time.Duration) []ResultBatch {
	t.Helper()
	var batches []ResultBatch
	got := 0
	deadline := time.After(timeout)
	for got < want {
		select {
		case b := <-out:
			batches = append(batches, b)
			got += len(b)
		case <-deadline:
			t.Fatalf("timed out after %v: got %d of %d results", timeout, got, want)
		}
	}
	return batches
}

// expectNothing fails if a batch arrives within d.
func expectNothing(t *testing.T, out <-chan ResultBatch, d time.Duration) {
	t.Helper()
	select {
	case b := <-out:
		t.Fatalf("unexpected result batch: %+v", b)
	case <-time.After(d):
	}
}

func flatten(batches []ResultBatch) []TaskResult {
	var all []TaskResult
	for _, b := range batches {
		all = append(all, b...)
	}
	return all
}

func taskIDs(results []TaskResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.TaskID)
	}
	sort.Strings(ids)
	return ids
}

func makeBatch(function string, n int) TaskBatch {
	batch := make(TaskBatch, n)
	for i := range n {
		batch[i] = TaskDefinition{
			Function:  function,
			AttemptID: "a1",
			TaskID:    fmt.Sprintf("t%02d", i),
			Args:      float64(i),
		}
	}
	return batch
}
