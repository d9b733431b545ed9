package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type flushRecorder struct {
	NilMetrics
	mu      sync.Mutex
	flushes []int
}

func (m *flushRecorder) RecordFlush(runnerName string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes = append(m.flushes, size)
}

func newTestDebouncer(t *testing.T, threshold int, window time.Duration) (*Debouncer, chan ResultBatch) {
	t.Helper()
	owner := NewSingleThreadTaskRunner()
	t.Cleanup(owner.Stop)
	out := make(chan ResultBatch, 16)
	return NewDebouncer(owner, out, threshold, window), out
}

func result(id string) TaskResult {
	return TaskResult{AttemptID: "a", TaskID: id, Result: Success(id)}
}

// TestDebouncer_WindowFor tests window selection by batch size
// Main test items:
// 1. Sizes up to the threshold get a zero window
// 2. Sizes above it get the configured window
func TestDebouncer_WindowFor(t *testing.T) {
	d, _ := newTestDebouncer(t, DefaultDebounceThreshold, DefaultDebounceWindow)

	cases := []struct {
		size int
		want time.Duration
	}{
		{0, 0},
		{1, 0},
		{10, 0},
		{11, 20 * time.Millisecond},
		{500, 20 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := d.WindowFor(tc.size); got != tc.want {
			t.Errorf("WindowFor(%d) = %v, want %v", tc.size, got, tc.want)
		}
	}
}

// TestDebouncer_SmallBatchFlushesImmediately tests zero-window delivery
// Main test items:
// 1. Enqueue one result from a batch of size 1
// 2. Verify it is delivered well before a 20ms window would elapse
func TestDebouncer_SmallBatchFlushesImmediately(t *testing.T) {
	d, out := newTestDebouncer(t, DefaultDebounceThreshold, DefaultDebounceWindow)

	start := time.Now()
	d.Enqueue(result("t1"), 1)

	batch := collect(t, out, 1, time.Second)[0]
	if elapsed := time.Since(start); elapsed >= DefaultDebounceWindow {
		t.Errorf("flush took %v, want < %v", elapsed, DefaultDebounceWindow)
	}
	if len(batch) != 1 || batch[0].TaskID != "t1" {
		t.Fatalf("batch = %+v", batch)
	}
}

// TestDebouncer_SmallBatchResultsAreNotGrouped tests spaced small-batch results
// Main test items:
// 1. Enqueue two results of a 2-definition batch 30ms apart
// 2. Verify they arrive as two separate ResultBatches
func TestDebouncer_SmallBatchResultsAreNotGrouped(t *testing.T) {
	d, out := newTestDebouncer(t, DefaultDebounceThreshold, DefaultDebounceWindow)

	d.Enqueue(result("t1"), 2)
	first := collect(t, out, 1, time.Second)
	time.Sleep(30 * time.Millisecond)
	d.Enqueue(result("t2"), 2)
	second := collect(t, out, 1, time.Second)

	if len(first) != 1 || len(first[0]) != 1 || len(second) != 1 || len(second[0]) != 1 {
		t.Fatalf("expected two single-result batches, got %+v then %+v", first, second)
	}
}

// TestDebouncer_LargeBatchGroupsResults tests quiescence grouping
// Main test items:
// 1. Enqueue 15 results of a 15-definition batch in a burst
// 2. Verify exactly one ResultBatch carrying all of them, in enqueue order
// 3. Verify the flush happens only after the window elapsed
func TestDebouncer_LargeBatchGroupsResults(t *testing.T) {
	d, out := newTestDebouncer(t, DefaultDebounceThreshold, DefaultDebounceWindow)
	metrics := &flushRecorder{}
	d.metrics = metrics

	start := time.Now()
	for i := range 15 {
		d.Enqueue(result(fmt.Sprintf("t%02d", i)), 15)
	}

	batches := collect(t, out, 15, time.Second)
	if elapsed := time.Since(start); elapsed < DefaultDebounceWindow {
		t.Errorf("flushed after %v, want >= %v", elapsed, DefaultDebounceWindow)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	for i, res := range batches[0] {
		if want := fmt.Sprintf("t%02d", i); res.TaskID != want {
			t.Errorf("position %d = %s, want %s", i, res.TaskID, want)
		}
	}
	expectNothing(t, out, 2*DefaultDebounceWindow)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.flushes) != 1 || metrics.flushes[0] != 15 {
		t.Errorf("recorded flushes = %v, want [15]", metrics.flushes)
	}
	if d.FlushedBatches() != 1 || d.Buffered() != 0 {
		t.Errorf("flushed=%d buffered=%d", d.FlushedBatches(), d.Buffered())
	}
}

// TestDebouncer_ArrivalResetsWindow tests cancel-and-reschedule of the pending flush
// Main test items:
// 1. Enqueue results every 10ms with a 20ms window
// 2. Verify nothing is flushed while results keep arriving
// 3. Verify a single batch follows once arrivals stop
func TestDebouncer_ArrivalResetsWindow(t *testing.T) {
	d, out := newTestDebouncer(t, DefaultDebounceThreshold, DefaultDebounceWindow)

	for i := range 5 {
		d.Enqueue(result(fmt.Sprintf("t%d", i)), 50)
		select {
		case b := <-out:
			t.Fatalf("flushed %d results while arrivals continued", len(b))
		case <-time.After(10 * time.Millisecond):
		}
	}

	batches := collect(t, out, 5, time.Second)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
}

// TestDebouncer_IsIdle tests the owner-side idle check
// Main test items:
// 1. A fresh debouncer is idle
// 2. A debouncer with a pending flush is not idle
// 3. A stopped owner reports ErrRunnerClosed
func TestDebouncer_IsIdle(t *testing.T) {
	d, out := newTestDebouncer(t, 0, 50*time.Millisecond)
	ctx := context.Background()

	if idle, err := d.isIdle(ctx); err != nil || !idle {
		t.Fatalf("fresh debouncer: idle=%v err=%v", idle, err)
	}

	d.Enqueue(result("t1"), 1)
	if idle, err := d.isIdle(ctx); err != nil || idle {
		t.Fatalf("pending debouncer: idle=%v err=%v", idle, err)
	}

	collect(t, out, 1, time.Second)
	if idle, err := d.isIdle(ctx); err != nil || !idle {
		t.Fatalf("flushed debouncer: idle=%v err=%v", idle, err)
	}

	d.owner.Stop()
	if _, err := d.isIdle(ctx); err != ErrRunnerClosed {
		t.Fatalf("stopped owner: err=%v, want ErrRunnerClosed", err)
	}
}

// TestNewDebouncer_PanicsOnNil tests constructor validation
func TestNewDebouncer_PanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil outbound")
		}
	}()
	NewDebouncer(NewSingleThreadTaskRunner(), nil, 0, 0)
}

// TestDebouncer_InterleavedBatchesShareFlush tests grouping across batches
// Main test items:
// 1. Interleave results of two large batches with different attempt IDs
// 2. Verify both land in one ResultBatch in arrival order
func TestDebouncer_InterleavedBatchesShareFlush(t *testing.T) {
	d, out := newTestDebouncer(t, DefaultDebounceThreshold, DefaultDebounceWindow)

	var want []string
	for i := range 6 {
		for _, attempt := range []string{"a", "b"} {
			id := fmt.Sprintf("t%d", i)
			d.Enqueue(TaskResult{AttemptID: attempt, TaskID: id, Result: Success(i)}, 12)
			want = append(want, attempt+"/"+id)
		}
	}

	batches := collect(t, out, len(want), time.Second)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	for i, res := range batches[0] {
		if got := res.AttemptID + "/" + res.TaskID; got != want[i] {
			t.Errorf("position %d = %s, want %s", i, got, want[i])
		}
	}
}

// TestDebouncer_ManySmallBatchResults tests zero-window delivery under load
// Main test items:
// 1. Enqueue 1000 results of small batches from concurrent goroutines
// 2. Verify all of them are flushed while the consumer reads
func TestDebouncer_ManySmallBatchResults(t *testing.T) {
	d, out := newTestDebouncer(t, DefaultDebounceThreshold, DefaultDebounceWindow)

	const n = 1000
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Enqueue(result(fmt.Sprintf("t%04d", i)), 1)
		}()
	}

	results := flatten(collect(t, out, n, 5*time.Second))
	wg.Wait()
	if ids := taskIDs(results); len(ids) != n || ids[0] != "t0000" || ids[n-1] != "t0999" {
		t.Fatalf("got %d results, first/last mismatch", len(ids))
	}
}
