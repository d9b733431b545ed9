package core

import (
	"sync"
)

const defaultTaskHistoryCapacity = 100

// executionHistory is a fixed-size ring of the most recent executions.
type executionHistory struct {
	mu    sync.Mutex
	items []TaskExecutionRecord
	head  int
	count int
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &executionHistory{items: make([]TaskExecutionRecord, capacity)}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]TaskExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return TaskExecutionRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
