package core

import (
	"time"
)

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting dispatch metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from task goroutines and from the owner loop concurrently,
// so implementations must be thread-safe, non-blocking and fast.
type Metrics interface {
	// RecordTaskDuration records how long one task invocation took.
	//
	// Parameters:
	// - function: The registered function name
	// - outcome: "success" or "failure"
	// - duration: Time from invocation to completion
	RecordTaskDuration(function string, outcome string, duration time.Duration)

	// RecordTaskFailure records a Failure result produced by the core.
	//
	// Parameters:
	// - function: The requested function name
	// - reason: ReasonMissingFunction or ReasonException
	RecordTaskFailure(function string, reason string)

	// RecordInFlight records the number of tasks currently executing.
	RecordInFlight(runnerName string, inFlight int)

	// RecordFlush records one ResultBatch written to the outbound channel.
	RecordFlush(runnerName string, size int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(function string, outcome string, duration time.Duration) {
}

func (m *NilMetrics) RecordTaskFailure(function string, reason string) {}

func (m *NilMetrics) RecordInFlight(runnerName string, inFlight int) {}

func (m *NilMetrics) RecordFlush(runnerName string, size int) {}
