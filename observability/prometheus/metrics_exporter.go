// Package prometheus exports dispatch metrics and runner snapshots to
// Prometheus.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-task-port/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets  []float64
	FlushSizeBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskFailuresTotal   *prom.CounterVec
	tasksInFlight       *prom.GaugeVec
	flushBatchSize      *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "taskport"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	sizeBuckets := opts.FlushSizeBuckets
	if len(sizeBuckets) == 0 {
		sizeBuckets = prom.ExponentialBuckets(1, 2, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"function", "outcome"})
	failuresVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failures_total",
		Help:      "Total number of failed task results.",
	}, []string{"function", "reason"})
	inFlightVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_in_flight",
		Help:      "Tasks currently executing.",
	}, []string{"runner"})
	flushVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "flush_batch_size",
		Help:      "Results per flushed result batch.",
		Buckets:   sizeBuckets,
	}, []string{"runner"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failuresVec, err = registerCollector(reg, failuresVec); err != nil {
		return nil, err
	}
	if inFlightVec, err = registerCollector(reg, inFlightVec); err != nil {
		return nil, err
	}
	if flushVec, err = registerCollector(reg, flushVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskFailuresTotal:   failuresVec,
		tasksInFlight:       inFlightVec,
		flushBatchSize:      flushVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(function string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(function, "unknown"), normalizeLabel(outcome, "unknown")).Observe(duration.Seconds())
}

// RecordTaskFailure records a failed result.
func (m *MetricsExporter) RecordTaskFailure(function string, reason string) {
	if m == nil {
		return
	}
	m.taskFailuresTotal.WithLabelValues(normalizeLabel(function, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordInFlight records the number of executing tasks.
func (m *MetricsExporter) RecordInFlight(runnerName string, inFlight int) {
	if m == nil {
		return
	}
	m.tasksInFlight.WithLabelValues(normalizeLabel(runnerName, "unknown")).Set(float64(inFlight))
}

// RecordFlush records the size of a flushed result batch.
func (m *MetricsExporter) RecordFlush(runnerName string, size int) {
	if m == nil {
		return
	}
	m.flushBatchSize.WithLabelValues(normalizeLabel(runnerName, "unknown")).Observe(float64(size))
}

// ForgetRunner drops the per-runner series of a stopped runner.
func (m *MetricsExporter) ForgetRunner(runnerName string) {
	if m == nil {
		return
	}
	m.tasksInFlight.DeleteLabelValues(runnerName)
	m.flushBatchSize.DeleteLabelValues(runnerName)
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
