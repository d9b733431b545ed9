package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// Implementation is the capability contract every task satisfies: opaque args
// in, a value or an error out.
//
// Returning an error (or panicking) is an execution failure and is turned into
// a Failure by the Classifier. An Implementation that wants to report a
// failure of its effect (a refused connection, a missing key) returns a value
// describing it and a nil error; the dispatcher passes that value through as
// a Success untouched.
//
// Invoke may block. Every invocation runs on its own goroutine.
type Implementation interface {
	Invoke(ctx context.Context, args any) (any, error)
}

// ImplementationFunc adapts an ordinary function to Implementation.
type ImplementationFunc func(ctx context.Context, args any) (any, error)

// Invoke calls f(ctx, args).
func (f ImplementationFunc) Invoke(ctx context.Context, args any) (any, error) {
	return f(ctx, args)
}

// Typed builds an Implementation from a handler taking decoded arguments.
// A decode failure is returned as an execution failure.
func Typed[A any, R any](fn func(ctx context.Context, args A) (R, error)) Implementation {
	return ImplementationFunc(func(ctx context.Context, raw any) (any, error) {
		args, err := BindArgs[A](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	})
}

// BindArgs converts opaque args, as decoded by any wire codec, into T.
// Values already of type T are returned as-is; raw JSON is unmarshalled;
// anything else goes through a JSON round trip.
func BindArgs[T any](args any) (T, error) {
	var out T
	if v, ok := args.(T); ok {
		return v, nil
	}

	var data []byte
	switch v := args.(type) {
	case json.RawMessage:
		data = v
	default:
		encoded, err := json.Marshal(args)
		if err != nil {
			return out, fmt.Errorf("encode args: %w", err)
		}
		data = encoded
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode args into %T: %w", out, err)
	}
	return out, nil
}
