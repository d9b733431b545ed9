package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// PanicError carries a value recovered from a panicking Implementation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprint(e.Value)
}

// Kind reports "panic" so the Classifier labels the failure accordingly.
func (e *PanicError) Kind() string {
	return "panic"
}

// Classifier converts execution failures into Failure values with
// reason ReasonException and message "<kind>: <detail>".
//
// It only sees errors returned (or panics raised) by an Implementation.
// Domain failures reported inside a returned value never reach it.
type Classifier struct {
	includeRaw bool
}

// NewClassifier returns a Classifier. With includeRaw the Failure carries the
// Go error type and, for panics, the stack trace.
func NewClassifier(includeRaw bool) *Classifier {
	return &Classifier{includeRaw: includeRaw}
}

// Classify maps err to a Failure. err must be non-nil.
func (c *Classifier) Classify(err error) Failure {
	f := Failure{
		Reason:  ReasonException,
		Message: errorKind(err) + ": " + err.Error(),
	}
	if c.includeRaw {
		raw := map[string]any{"type": fmt.Sprintf("%T", err)}
		var pe *PanicError
		if errors.As(err, &pe) {
			raw["type"] = fmt.Sprintf("%T", pe.Value)
			raw["stack"] = string(pe.Stack)
		}
		f.Raw = raw
	}
	return f
}

func errorKind(err error) string {
	var kinded interface{ Kind() string }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}
	return "error"
}

// invoke calls impl and turns a panic into a *PanicError, so that nothing an
// Implementation does can escape past the dispatcher.
func invoke(ctx context.Context, impl Implementation, args any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return impl.Invoke(ctx, args)
}
