package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("taskport", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("double", "success", 250*time.Millisecond)
	exporter.RecordTaskFailure("fetch", "function_not_found")
	exporter.RecordInFlight("runner-a", 7)
	exporter.RecordFlush("runner-a", 15)
	exporter.RecordFlush("runner-a", 1)

	failures := testutil.ToFloat64(exporter.taskFailuresTotal.WithLabelValues("fetch", "function_not_found"))
	if failures != 1 {
		t.Fatalf("failure total = %v, want 1", failures)
	}

	inFlight := testutil.ToFloat64(exporter.tasksInFlight.WithLabelValues("runner-a"))
	if inFlight != 7 {
		t.Fatalf("in flight = %v, want 7", inFlight)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("double", "success"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}

	flushCount, err := histogramSampleCount(exporter.flushBatchSize.WithLabelValues("runner-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if flushCount != 2 {
		t.Fatalf("flush sample count = %d, want 2", flushCount)
	}
}

func TestMetricsExporter_EmptyLabels(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskFailure("", "")
	if got := testutil.ToFloat64(exporter.taskFailuresTotal.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("unknown failure total = %v, want 1", got)
	}

	var nilExporter *MetricsExporter
	nilExporter.RecordInFlight("runner-a", 1)
	nilExporter.ForgetRunner("runner-a")
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("taskport", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("taskport", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskFailure("fetch", "js_exception")
	second.RecordTaskFailure("fetch", "js_exception")

	got := testutil.ToFloat64(first.taskFailuresTotal.WithLabelValues("fetch", "js_exception"))
	if got != 2 {
		t.Fatalf("shared failure counter = %v, want 2", got)
	}
}

func TestMetricsExporter_ForgetRunner(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("taskport", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordInFlight("runner-a", 3)
	exporter.RecordInFlight("runner-b", 1)
	exporter.ForgetRunner("runner-a")

	if got := testutil.CollectAndCount(exporter.tasksInFlight); got != 1 {
		t.Fatalf("in flight series = %d, want 1", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
