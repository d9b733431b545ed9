package taskport

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-task-port/builtin"
	"github.com/Swind/go-task-port/core"
)

// Debug enables diagnostics. All switches are off by default.
type Debug struct {
	// TraceStart logs an entry when a task starts.
	TraceStart bool
	// TraceFinish logs an entry when a task completes.
	TraceFinish bool
	// FlagCollisions warns when a caller task shadows a builtin name or an
	// override targets an unknown builtin.
	FlagCollisions bool
	// IncludeRaw attaches the Go error type and panic stacks to failures.
	IncludeRaw bool
}

// Options configures Register.
type Options struct {
	// Tasks are the caller implementations, keyed by the name callers use.
	Tasks map[string]Implementation

	// Channels connects the runner to the caller. Outbound is required.
	Channels Channels

	// BuiltinOverrides replaces default builtins, keyed by bare name
	// ("http") or reserved name ("builtin:http").
	BuiltinOverrides map[string]Implementation

	// Builtins configures the default builtins.
	Builtins []builtin.Option

	Debug Debug

	// Name identifies the runner in logs and metrics. Generated when empty.
	Name string

	Logger  Logger
	Metrics Metrics

	// Policy selects the missing-function behavior. Defaults to AbortBatch.
	Policy MissingFunctionPolicy

	// DebounceThreshold and DebounceWindow override the defaults (10, 20ms)
	// when positive.
	DebounceThreshold int
	DebounceWindow    time.Duration
}

// Register builds the registry from the default builtins, the overrides and
// the caller tasks, then creates and starts a Runner consuming
// opts.Channels.Inbound until ctx ends or the runner is stopped.
func Register(ctx context.Context, opts Options) (*Runner, error) {
	if opts.Channels.Outbound == nil {
		return nil, fmt.Errorf("taskport: outbound channel is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = core.NewNoOpLogger()
	}

	builtinOpts := append([]builtin.Option{builtin.WithLogger(logger)}, opts.Builtins...)
	registry, err := core.BuildRegistry(
		builtin.Defaults(builtinOpts...),
		opts.BuiltinOverrides,
		opts.Tasks,
		core.WithRegistryLogger(logger),
		core.WithCollisionFlagging(opts.Debug.FlagCollisions),
	)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	runnerOpts := []core.Option{
		core.WithName(opts.Name),
		core.WithLogger(logger),
		core.WithMetrics(opts.Metrics),
		core.WithMissingFunctionPolicy(opts.Policy),
		core.WithTrace(core.TraceOptions{Start: opts.Debug.TraceStart, Finish: opts.Debug.TraceFinish}),
		core.WithRawFailures(opts.Debug.IncludeRaw),
	}
	if opts.DebounceThreshold > 0 || opts.DebounceWindow > 0 {
		runnerOpts = append(runnerOpts, core.WithDebounce(positiveOr(opts.DebounceThreshold, -1), positiveOr(opts.DebounceWindow, -1)))
	}

	runner := core.NewRunner(registry, opts.Channels, runnerOpts...)
	if err := runner.Start(ctx); err != nil {
		return nil, err
	}
	return runner, nil
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
