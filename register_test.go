package taskport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Swind/go-task-port/builtin"
)

// TestRegister_HTTPNetworkError tests a builtin domain failure end to end
// Main test items:
// 1. builtin:http against a closed server
// 2. Verify the result is a success whose value carries NETWORK_ERROR
func TestRegister_HTTPNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := make(chan ResultBatch, 1)
	runner, err := Register(context.Background(), Options{Channels: Channels{Outbound: out}})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer runner.Stop()

	_ = runner.Dispatch(TaskBatch{{
		Function:  "builtin:http",
		AttemptID: "a1",
		TaskID:    "t1",
		Args:      map[string]any{"url": url, "method": "GET", "headers": []any{}, "expect": "STRING", "timeout": nil, "body": nil},
	}})

	select {
	case batch := <-out:
		res := batch[0].Result
		if res.IsFailure() {
			t.Fatalf("domain failure was reclassified: %+v", res.Error)
		}
		httpErr, ok := res.Value.(builtin.HTTPError)
		if !ok || httpErr.Error.Reason != builtin.ReasonNetworkError {
			t.Fatalf("value = %#v, want NETWORK_ERROR", res.Value)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}
}

// TestRegister_Options tests option plumbing
// Main test items:
// 1. Missing outbound channel is rejected
// 2. Invalid task entries are rejected
// 3. Name, policy and debounce settings reach the runner
func TestRegister_Options(t *testing.T) {
	if _, err := Register(context.Background(), Options{}); err == nil {
		t.Error("expected error without outbound channel")
	}

	out := make(chan ResultBatch, 4)
	if _, err := Register(context.Background(), Options{
		Tasks:    map[string]Implementation{"": ImplementationFunc(nil)},
		Channels: Channels{Outbound: out},
	}); err == nil {
		t.Error("expected error for invalid task")
	}

	runner, err := Register(context.Background(), Options{
		Name:              "named",
		Tasks:             map[string]Implementation{"ok": Typed(func(ctx context.Context, _ any) (int, error) { return 1, nil })},
		Channels:          Channels{Outbound: out},
		Policy:            IsolateDefinition,
		DebounceThreshold: 1,
		DebounceWindow:    30 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer runner.Stop()

	if runner.Name() != "named" {
		t.Errorf("name = %s", runner.Name())
	}

	start := time.Now()
	_ = runner.Dispatch(TaskBatch{
		{Function: "ok", AttemptID: "a", TaskID: "1"},
		{Function: "missing", AttemptID: "a", TaskID: "2"},
	})

	got := 0
	for got < 2 {
		select {
		case b := <-out:
			got += len(b)
		case <-time.After(time.Second):
			t.Fatalf("got %d of 2 results", got)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("results flushed after %v, want the 30ms window", elapsed)
	}
}
