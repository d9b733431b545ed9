package storage

import (
	"context"
	"errors"

	"github.com/Swind/go-task-port/core"
)

// Domain error codes returned inside task values.
const (
	ErrorNoValue       = "NO_VALUE"
	ErrorReadBlocked   = "READ_BLOCKED"
	ErrorWriteBlocked  = "WRITE_BLOCKED"
	ErrorQuotaExceeded = "QUOTA_EXCEEDED"
)

// ItemError is the value returned when a storage operation cannot complete.
type ItemError struct {
	Error string `json:"error"`
}

type keyArgs struct {
	Key string `json:"key"`
}

type setArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Tasks exposes store as "<prefix>:getItem", "<prefix>:setItem" and
// "<prefix>:removeItem". Backend errors are returned as ItemError values, so
// a broken backend never turns into an execution failure.
func Tasks(prefix string, store Store, logger core.Logger) map[string]core.Implementation {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	t := &itemTasks{store: store, logger: logger}
	return map[string]core.Implementation{
		prefix + ":getItem":    core.Typed(t.getItem),
		prefix + ":setItem":    core.Typed(t.setItem),
		prefix + ":removeItem": core.Typed(t.removeItem),
	}
}

type itemTasks struct {
	store  Store
	logger core.Logger
}

// getItem returns the stored string, or an ItemError.
func (t *itemTasks) getItem(ctx context.Context, args keyArgs) (any, error) {
	value, err := t.store.Get(ctx, args.Key)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, ErrNotFound):
		return ItemError{Error: ErrorNoValue}, nil
	default:
		t.logger.Warn("storage read failed", core.F("key", args.Key), core.F("error", err.Error()))
		return ItemError{Error: ErrorReadBlocked}, nil
	}
}

// setItem returns nil on success, or an ItemError.
func (t *itemTasks) setItem(ctx context.Context, args setArgs) (any, error) {
	err := t.store.Set(ctx, args.Key, args.Value)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, ErrQuotaExceeded):
		return ItemError{Error: ErrorQuotaExceeded}, nil
	default:
		t.logger.Warn("storage write failed", core.F("key", args.Key), core.F("error", err.Error()))
		return ItemError{Error: ErrorWriteBlocked}, nil
	}
}

func (t *itemTasks) removeItem(ctx context.Context, args keyArgs) (any, error) {
	if err := t.store.Delete(ctx, args.Key); err != nil {
		t.logger.Warn("storage delete failed", core.F("key", args.Key), core.F("error", err.Error()))
		return ItemError{Error: ErrorWriteBlocked}, nil
	}
	return nil, nil
}
