package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MissingFunctionPolicy decides what a batch referencing an unregistered
// function does. A runner uses exactly one policy for its whole lifetime.
type MissingFunctionPolicy int

const (
	// AbortBatch reports the first unregistered definition as
	// missing_function and executes nothing else from that batch.
	AbortBatch MissingFunctionPolicy = iota

	// IsolateDefinition reports every unregistered definition as
	// missing_function and executes the registered ones.
	IsolateDefinition
)

func (p MissingFunctionPolicy) String() string {
	switch p {
	case AbortBatch:
		return "abort_batch"
	case IsolateDefinition:
		return "isolate_definition"
	default:
		return fmt.Sprintf("MissingFunctionPolicy(%d)", int(p))
	}
}

// ParseMissingFunctionPolicy parses the names returned by String.
func ParseMissingFunctionPolicy(s string) (MissingFunctionPolicy, error) {
	switch s {
	case "", "abort_batch":
		return AbortBatch, nil
	case "isolate_definition":
		return IsolateDefinition, nil
	default:
		return AbortBatch, fmt.Errorf("unknown missing function policy %q", s)
	}
}

// TraceOptions enables per-task trace entries. Both are off by default.
type TraceOptions struct {
	Start  bool
	Finish bool
}

// Dispatcher validates batches against a Registry, runs every definition on
// its own goroutine and forwards each outcome to a Debouncer as soon as it is
// known.
//
// There is no concurrency cap: a batch of N definitions puts N invocations in
// flight. Sizing batches is the caller's job.
type Dispatcher struct {
	ctx        context.Context
	registry   *Registry
	classifier *Classifier
	debouncer  *Debouncer
	policy     MissingFunctionPolicy
	trace      TraceOptions

	logger     Logger
	metrics    Metrics
	history    *executionHistory
	runnerName string

	inFlight   atomic.Int64
	dispatched atomic.Int64
}

// Dispatch validates batch and starts its tasks. It never blocks on task
// execution; results arrive through the Debouncer.
func (d *Dispatcher) Dispatch(batch TaskBatch) {
	size := len(batch)
	impls := make([]Implementation, size)

	for i, def := range batch {
		impl, ok := d.registry.Lookup(def.Function)
		if ok {
			impls[i] = impl
			continue
		}

		d.reportMissing(def, size)
		if d.policy == AbortBatch {
			return
		}
	}

	for i, def := range batch {
		if impls[i] == nil {
			continue
		}
		d.inFlight.Add(1)
		d.dispatched.Add(1)
		d.metrics.RecordInFlight(d.runnerName, int(d.inFlight.Load()))
		go d.run(def, impls[i], size)
	}
}

func (d *Dispatcher) reportMissing(def TaskDefinition, batchSize int) {
	failure := Failure{
		Reason:  ReasonMissingFunction,
		Message: fmt.Sprintf("%s is not registered", def.Function),
	}
	d.logger.Warn("function not registered",
		F("function", def.Function),
		F("attempt_id", def.AttemptID),
		F("task_id", def.TaskID),
		F("policy", d.policy.String()),
	)
	d.metrics.RecordTaskFailure(def.Function, ReasonMissingFunction)
	d.debouncer.Enqueue(resultFor(def, Fail(failure)), batchSize)
}

// run executes one definition. The result is enqueued before the in-flight
// counter drops, so an idle check never misses it.
func (d *Dispatcher) run(def TaskDefinition, impl Implementation, batchSize int) {
	defer func() {
		n := d.inFlight.Add(-1)
		d.metrics.RecordInFlight(d.runnerName, int(n))
	}()

	if d.trace.Start {
		d.logger.Info("task started",
			F("function", def.Function),
			F("attempt_id", def.AttemptID),
			F("task_id", def.TaskID),
		)
	}

	startedAt := time.Now()
	value, err := invoke(d.ctx, impl, def.Args)
	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)

	record := TaskExecutionRecord{
		AttemptID:  def.AttemptID,
		TaskID:     def.TaskID,
		Function:   def.Function,
		RunnerName: d.runnerName,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
	}

	var outcome Outcome
	if err != nil {
		failure := d.classifier.Classify(err)
		outcome = Fail(failure)
		record.Failed = true
		record.Reason = failure.Reason
		d.logger.Warn("task failed",
			F("function", def.Function),
			F("attempt_id", def.AttemptID),
			F("task_id", def.TaskID),
			F("error", failure.Message),
		)
		d.metrics.RecordTaskFailure(def.Function, failure.Reason)
		d.metrics.RecordTaskDuration(def.Function, "failure", duration)
	} else {
		outcome = Success(value)
		d.metrics.RecordTaskDuration(def.Function, "success", duration)
	}

	if d.trace.Finish {
		d.logger.Info("task finished",
			F("function", def.Function),
			F("attempt_id", def.AttemptID),
			F("task_id", def.TaskID),
			F("duration", duration),
			F("failed", record.Failed),
		)
	}

	d.history.Add(record)
	d.debouncer.Enqueue(resultFor(def, outcome), batchSize)
}

// InFlight returns the number of tasks currently executing.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}
