package core

import "errors"

var (
	// Registry construction errors.
	ErrEmptyTaskName     = errors.New("taskport: empty task name")
	ErrNilImplementation = errors.New("taskport: nil implementation")

	// Lifecycle errors.
	ErrRunnerClosed  = errors.New("taskport: runner closed")
	ErrRunnerStarted = errors.New("taskport: runner already started")
)
