// Package monitor drives all collection on a fixed cadence and owns every
// piece of shared state. Consumers only ever read atomically published
// snapshots; nothing in here hands out a live reference to mutable state.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"netsentry/internal/collector"
	"netsentry/internal/config"
	"netsentry/internal/discovery"
	"netsentry/internal/security"
	"netsentry/pkg/types"
)

// ErrAlreadyRunning is returned by Start when the monitor is running.
var ErrAlreadyRunning = errors.New("monitor already running")

type sampler interface {
	Sample() (types.SpeedSample, error)
}

type tracker interface {
	List() ([]types.Connection, error)
	Filter(conns []types.Connection, excludeSystem bool) []types.Connection
}

// Monitor is the collection scheduler. One background goroutine executes
// the full cycle each tick: sample, history append, connection refresh,
// device refresh (on its own slower cadence), heuristic evaluation, then
// the atomic publication of a new snapshot.
type Monitor struct {
	cfg config.Config
	log zerolog.Logger

	sampler    sampler
	tracker    tracker
	discoverer discovery.Discoverer
	registry   *discovery.Registry
	engine     *security.Engine
	history    *collector.History

	// Carried forward when a collection step degrades.
	lastSample types.SpeedSample
	lastConns  []types.Connection
	lastDevs   []types.NetworkDevice
	alerts     []types.Alert

	snapshot atomic.Pointer[types.Snapshot]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	ticksPerScan int
	tickCount    uint64
	now          func() time.Time
}

// New builds a monitor wired to the real OS collectors.
func New(cfg config.Config, log zerolog.Logger) *Monitor {
	m := &Monitor{
		cfg:        cfg,
		log:        log,
		sampler:    collector.NewSampler(cfg.Interface),
		tracker:    collector.NewTracker(cfg.SystemProcesses),
		discoverer: discovery.NewScanner(log),
		registry:   discovery.NewRegistry(log),
		engine: security.NewEngine(security.Config{
			PortScanThreshold:     cfg.Detection.PortScanThreshold,
			PortScanHighThreshold: cfg.Detection.PortScanHighThreshold,
			TrafficMultiplier:     cfg.Detection.TrafficMultiplier,
			TrafficMinSamples:     cfg.Detection.TrafficMinSamples,
			TrustedProcesses:      cfg.Detection.TrustedProcesses,
		}),
		history:      collector.NewHistory(cfg.HistorySize),
		ticksPerScan: cfg.DeviceScanIntervalSec / cfg.TickIntervalSec,
		now:          time.Now,
	}
	if m.ticksPerScan < 1 {
		m.ticksPerScan = 1
	}
	// Consumers get a structurally valid snapshot even before the first
	// tick completes.
	m.snapshot.Store(&types.Snapshot{TakenAt: m.now()})
	return m
}

// Start begins periodic collection. It returns immediately; collection
// runs on a background goroutine until Stop or context cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(ctx)
	m.log.Info().
		Int("tick_interval_sec", m.cfg.TickIntervalSec).
		Int("device_scan_interval_sec", m.cfg.DeviceScanIntervalSec).
		Msg("monitor started")
	return nil
}

// Stop halts collection. The in-flight tick, if any, completes and its
// snapshot is published before Stop returns; nothing torn is ever visible.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	m.log.Info().Msg("monitor stopped")
}

// Running reports the scheduler state.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Snapshot returns a deep copy of the latest published view. Safe to call
// concurrently with ticking; two calls without an intervening tick return
// equal results.
func (m *Monitor) Snapshot() types.Snapshot {
	s := m.snapshot.Load()
	out := types.Snapshot{TakenAt: s.TakenAt}
	out.Samples = append([]types.SpeedSample(nil), s.Samples...)
	out.Connections = append([]types.Connection(nil), s.Connections...)
	out.Devices = append([]types.NetworkDevice(nil), s.Devices...)
	out.Alerts = append([]types.Alert(nil), s.Alerts...)
	return out
}

// Notable returns the latest connections with system processes filtered
// out, for consumers that want the curated view.
func (m *Monitor) Notable() []types.Connection {
	s := m.snapshot.Load()
	return m.tracker.Filter(append([]types.Connection(nil), s.Connections...), true)
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(time.Duration(m.cfg.TickIntervalSec) * time.Second)
	defer ticker.Stop()

	// An overrunning tick simply delays the next one; the ticker drops
	// intervening fires instead of compounding drift.
	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one full collection cycle. Step failures degrade to the
// previous value and never abort the cycle.
func (m *Monitor) tick(ctx context.Context) {
	now := m.now()

	sample, err := m.sampler.Sample()
	if err != nil {
		m.log.Warn().Err(err).Msg("sampler degraded, carrying forward last rates")
		sample = m.lastSample
		sample.Timestamp = now
	}
	m.lastSample = sample
	m.history.Append(sample)

	conns, err := m.tracker.List()
	if err != nil {
		m.log.Warn().Err(err).Msg("connection tracker degraded, keeping last set")
		conns = m.lastConns
	}
	m.lastConns = conns

	if m.tickCount%uint64(m.ticksPerScan) == 0 {
		// A failed or cancelled pass never merges: a partial pass would
		// wrongly flip unvisited devices to inactive.
		observed, err := m.discoverer.Discover(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.log.Warn().Err(err).Msg("device discovery failed, registry unchanged")
			}
		} else {
			m.lastDevs = m.registry.Merge(observed, now)
		}
	}
	m.tickCount++

	newAlerts := m.engine.Evaluate(conns, m.history.Snapshot())
	for _, a := range newAlerts {
		m.log.Info().
			Str("kind", string(a.Kind)).
			Str("severity", string(a.Severity)).
			Str("subject", a.Subject).
			Msg(a.Details)
	}
	m.alerts = append(m.alerts, newAlerts...)
	if over := len(m.alerts) - m.cfg.MaxAlerts; over > 0 {
		m.alerts = append([]types.Alert(nil), m.alerts[over:]...)
	}

	m.publish(now)
}

// publish swaps in a freshly built immutable snapshot. Readers either see
// the previous complete view or this one, never a mix.
func (m *Monitor) publish(now time.Time) {
	snap := &types.Snapshot{
		TakenAt:     now,
		Samples:     m.history.Snapshot(),
		Connections: append([]types.Connection(nil), m.lastConns...),
		Devices:     append([]types.NetworkDevice(nil), m.lastDevs...),
		Alerts:      append([]types.Alert(nil), m.alerts...),
	}
	m.snapshot.Store(snap)
}
