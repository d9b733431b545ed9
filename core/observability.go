package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	AttemptID  string
	TaskID     string
	Function   string
	RunnerName string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Failed     bool
	Reason     string
}

// RunnerStats represents runtime observability state for a Runner.
type RunnerStats struct {
	Name           string
	InFlight       int
	Buffered       int
	Dispatched     int64
	FlushedBatches int64
	Closed         bool
	LastTaskName   string
	LastTaskAt     time.Time
}

// StatsProvider is implemented by anything reporting RunnerStats.
type StatsProvider interface {
	Stats() RunnerStats
}
