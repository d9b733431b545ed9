package core

import "time"

// Option configures a Runner.
type Option func(*runnerConfig)

type runnerConfig struct {
	name            string
	logger          Logger
	metrics         Metrics
	policy          MissingFunctionPolicy
	trace           TraceOptions
	includeRaw      bool
	threshold       int
	window          time.Duration
	historyCapacity int
}

func defaultRunnerConfig() runnerConfig {
	return runnerConfig{
		logger:          NewNoOpLogger(),
		metrics:         &NilMetrics{},
		policy:          AbortBatch,
		threshold:       DefaultDebounceThreshold,
		window:          DefaultDebounceWindow,
		historyCapacity: defaultTaskHistoryCapacity,
	}
}

// WithName sets the runner name used in logs, metrics and stats.
// Defaults to a generated ULID.
func WithName(name string) Option {
	return func(c *runnerConfig) { c.name = name }
}

// WithLogger sets the logger. Defaults to NoOpLogger.
func WithLogger(l Logger) Option {
	return func(c *runnerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to NilMetrics.
func WithMetrics(m Metrics) Option {
	return func(c *runnerConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMissingFunctionPolicy selects how unregistered names affect a batch.
func WithMissingFunctionPolicy(p MissingFunctionPolicy) Option {
	return func(c *runnerConfig) { c.policy = p }
}

// WithTrace enables task start and/or finish trace entries.
func WithTrace(t TraceOptions) Option {
	return func(c *runnerConfig) { c.trace = t }
}

// WithRawFailures attaches the Go error type and panic stacks to failures.
func WithRawFailures(enabled bool) Option {
	return func(c *runnerConfig) { c.includeRaw = enabled }
}

// WithDebounce overrides the batch-size threshold and the flush window used
// for batches above it.
func WithDebounce(threshold int, window time.Duration) Option {
	return func(c *runnerConfig) {
		if threshold >= 0 {
			c.threshold = threshold
		}
		if window >= 0 {
			c.window = window
		}
	}
}

// WithHistoryCapacity sets how many executions RecentTasks keeps.
func WithHistoryCapacity(n int) Option {
	return func(c *runnerConfig) { c.historyCapacity = n }
}
