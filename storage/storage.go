// Package storage provides key/value persistence for tasks, with in-memory,
// SQLite and Redis backends, and the getItem/setItem/removeItem tasks that
// expose a Store to callers.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("storage: key not found")

	// ErrQuotaExceeded is returned by Set when the backend refuses to grow.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrEmptyKey is returned for operations on an empty key.
	ErrEmptyKey = errors.New("storage: empty key")
)

// Store persists string values by key. Implementations must be safe for
// concurrent use, since every task runs on its own goroutine.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
