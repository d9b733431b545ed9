package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-task-port/core"
)

// RunnerSnapshotProvider provides current runner stats snapshots.
type RunnerSnapshotProvider = core.StatsProvider

// SnapshotPoller periodically exports runner Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	runnersMu sync.RWMutex
	runners   map[string]RunnerSnapshotProvider

	runnerInFlight   *prom.GaugeVec
	runnerBuffered   *prom.GaugeVec
	runnerDispatched *prom.GaugeVec
	runnerFlushed    *prom.GaugeVec
	runnerClosed     *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	runnerInFlight := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskport",
		Name:      "runner_in_flight",
		Help:      "Number of executing tasks per runner.",
	}, []string{"runner"})
	runnerBuffered := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskport",
		Name:      "runner_buffered",
		Help:      "Results waiting for the next flush per runner.",
	}, []string{"runner"})
	runnerDispatched := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskport",
		Name:      "runner_dispatched_total",
		Help:      "Runner dispatched task count snapshot.",
	}, []string{"runner"})
	runnerFlushed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskport",
		Name:      "runner_flushed_batches_total",
		Help:      "Runner flushed result batch count snapshot.",
	}, []string{"runner"})
	runnerClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskport",
		Name:      "runner_closed",
		Help:      "Runner closed state (1=closed, 0=open).",
	}, []string{"runner"})

	var err error
	if runnerInFlight, err = registerCollector(reg, runnerInFlight); err != nil {
		return nil, err
	}
	if runnerBuffered, err = registerCollector(reg, runnerBuffered); err != nil {
		return nil, err
	}
	if runnerDispatched, err = registerCollector(reg, runnerDispatched); err != nil {
		return nil, err
	}
	if runnerFlushed, err = registerCollector(reg, runnerFlushed); err != nil {
		return nil, err
	}
	if runnerClosed, err = registerCollector(reg, runnerClosed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:         interval,
		runners:          make(map[string]RunnerSnapshotProvider),
		runnerInFlight:   runnerInFlight,
		runnerBuffered:   runnerBuffered,
		runnerDispatched: runnerDispatched,
		runnerFlushed:    runnerFlushed,
		runnerClosed:     runnerClosed,
	}, nil
}

// AddRunner adds or replaces a runner snapshot provider by name.
func (p *SnapshotPoller) AddRunner(name string, provider RunnerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	p.runners[name] = provider
	p.runnersMu.Unlock()
}

// RemoveRunner stops exporting name and deletes its series.
func (p *SnapshotPoller) RemoveRunner(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	delete(p.runners, name)
	p.runnersMu.Unlock()

	for _, vec := range []*prom.GaugeVec{p.runnerInFlight, p.runnerBuffered, p.runnerDispatched, p.runnerFlushed, p.runnerClosed} {
		vec.DeleteLabelValues(name)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runnersMu.RLock()
	defer p.runnersMu.RUnlock()

	for name, provider := range p.runners {
		stats := provider.Stats()
		p.runnerInFlight.WithLabelValues(name).Set(float64(stats.InFlight))
		p.runnerBuffered.WithLabelValues(name).Set(float64(stats.Buffered))
		p.runnerDispatched.WithLabelValues(name).Set(float64(stats.Dispatched))
		p.runnerFlushed.WithLabelValues(name).Set(float64(stats.FlushedBatches))
		if stats.Closed {
			p.runnerClosed.WithLabelValues(name).Set(1)
		} else {
			p.runnerClosed.WithLabelValues(name).Set(0)
		}
	}
}
