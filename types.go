package taskport

import (
	"context"

	"github.com/Swind/go-task-port/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskport package for most use cases.

// TaskDefinition identifies one requested effect
type TaskDefinition = core.TaskDefinition

// TaskBatch is one inbound channel message
type TaskBatch = core.TaskBatch

// TaskResult correlates an Outcome with its definition
type TaskResult = core.TaskResult

// ResultBatch is one outbound channel message
type ResultBatch = core.ResultBatch

// Outcome holds a value or a Failure
type Outcome = core.Outcome

// Failure is the error half of an Outcome
type Failure = core.Failure

// Implementation is the contract every task satisfies
type Implementation = core.Implementation

// ImplementationFunc adapts a function to Implementation
type ImplementationFunc = core.ImplementationFunc

// Channels are the caller-facing ends of a Runner
type Channels = core.Channels

// Runner is one dispatch engine instance
type Runner = core.Runner

// MissingFunctionPolicy decides what a batch referencing an unknown name does
type MissingFunctionPolicy = core.MissingFunctionPolicy

// Logger is the structured logging interface
type Logger = core.Logger

// Metrics is the metrics sink interface
type Metrics = core.Metrics

// Failure reasons produced by the runner
const (
	ReasonMissingFunction = core.ReasonMissingFunction
	ReasonException       = core.ReasonException
)

// Missing function policies
const (
	AbortBatch        = core.AbortBatch
	IsolateDefinition = core.IsolateDefinition
)

// Logger constructors
var (
	NewDefaultLogger = core.NewDefaultLogger
	NewNoOpLogger    = core.NewNoOpLogger
)

// Outcome constructors
var (
	Success = core.Success
	Fail    = core.Fail
)

// Typed builds an Implementation from a handler taking decoded arguments.
func Typed[A any, R any](fn func(ctx context.Context, args A) (R, error)) Implementation {
	return core.Typed(fn)
}
