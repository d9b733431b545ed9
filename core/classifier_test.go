package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type kindedError struct{ kind, msg string }

func (e kindedError) Error() string { return e.msg }
func (e kindedError) Kind() string  { return e.kind }

// TestClassifier_Classify tests message formatting per error kind
// Main test items:
// 1. Plain errors are prefixed with "error"
// 2. Kind() and context errors select their own prefix
// 3. Every failure has reason js_exception and no raw payload by default
func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(false)

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("boom"), "error: boom"},
		{"wrapped kind", fmt.Errorf("fetch: %w", kindedError{"TypeError", "bad input"}), "TypeError: fetch: bad input"},
		{"canceled", context.Canceled, "canceled: context canceled"},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), "deadline_exceeded: wait: context deadline exceeded"},
		{"panic", &PanicError{Value: "kaboom"}, "panic: kaboom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := c.Classify(tc.err)
			if f.Reason != ReasonException {
				t.Errorf("reason = %s, want %s", f.Reason, ReasonException)
			}
			if f.Message != tc.want {
				t.Errorf("message = %q, want %q", f.Message, tc.want)
			}
			if f.Raw != nil {
				t.Errorf("raw = %v, want nil", f.Raw)
			}
		})
	}
}

// TestClassifier_IncludeRaw tests the raw payload
// Main test items:
// 1. Errors carry their Go type
// 2. Panics carry the panic value type and the stack
func TestClassifier_IncludeRaw(t *testing.T) {
	c := NewClassifier(true)

	f := c.Classify(errors.New("boom"))
	raw, ok := f.Raw.(map[string]any)
	if !ok || raw["type"] != "*errors.errorString" {
		t.Fatalf("raw = %#v", f.Raw)
	}

	_, err := invoke(context.Background(), ImplementationFunc(func(ctx context.Context, args any) (any, error) {
		panic(42)
	}), nil)
	f = c.Classify(err)
	raw = f.Raw.(map[string]any)
	if raw["type"] != "int" {
		t.Errorf("panic type = %v, want int", raw["type"])
	}
	if stack, _ := raw["stack"].(string); !strings.Contains(stack, "goroutine") {
		t.Errorf("stack missing: %q", stack)
	}
}

// TestInvoke_RecoversPanics tests panic containment
func TestInvoke_RecoversPanics(t *testing.T) {
	value, err := invoke(context.Background(), ImplementationFunc(func(ctx context.Context, args any) (any, error) {
		panic(errors.New("inner"))
	}), nil)

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
	if value != nil {
		t.Errorf("value = %v, want nil", value)
	}
	if pe.Error() != "inner" {
		t.Errorf("Error() = %q, want inner", pe.Error())
	}
}
