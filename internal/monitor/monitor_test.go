package monitor

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"netsentry/internal/config"
	"netsentry/pkg/types"
)

type fakeSampler struct {
	samples []types.SpeedSample
	errs    []error
	i       int
}

func (f *fakeSampler) Sample() (types.SpeedSample, error) {
	if f.i < len(f.errs) && f.errs[f.i] != nil {
		err := f.errs[f.i]
		f.i++
		return types.SpeedSample{}, err
	}
	s := f.samples[f.i%len(f.samples)]
	f.i++
	return s, nil
}

type fakeTracker struct {
	conns []types.Connection
	err   error
}

func (f *fakeTracker) List() ([]types.Connection, error) {
	return f.conns, f.err
}

func (f *fakeTracker) Filter(conns []types.Connection, excludeSystem bool) []types.Connection {
	return conns
}

type fakeDiscoverer struct {
	passes [][]types.NetworkDevice
	i      int
}

func (f *fakeDiscoverer) Discover(ctx context.Context) ([]types.NetworkDevice, error) {
	if len(f.passes) == 0 {
		return nil, nil
	}
	pass := f.passes[f.i%len(f.passes)]
	f.i++
	return pass, nil
}

func testMonitor(t *testing.T, mutate func(cfg *config.Config)) *Monitor {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	m := New(cfg, zerolog.Nop())
	m.sampler = &fakeSampler{samples: []types.SpeedSample{{}}}
	m.tracker = &fakeTracker{}
	m.discoverer = &fakeDiscoverer{}
	return m
}

func TestTick_ConstantRates(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, nil)
	m.sampler = &fakeSampler{samples: []types.SpeedSample{
		{DownloadBps: 1024, UploadBps: 512, Connections: 7},
	}}

	for i := 0; i < 3; i++ {
		m.tick(context.Background())
	}

	snap := m.Snapshot()
	if len(snap.Samples) != 3 {
		t.Fatalf("samples=%d", len(snap.Samples))
	}
	latest := snap.Latest()
	if latest.DownloadBps != 1024 || latest.UploadBps != 512 {
		t.Fatalf("latest=%+v", latest)
	}
	if latest.Connections != 7 {
		t.Fatalf("connections=%d", latest.Connections)
	}
}

func TestTick_DeviceLifecycle(t *testing.T) {
	t.Parallel()

	dev := types.NetworkDevice{MAC: "aa:bb:cc:dd:ee:ff", IP: "192.168.1.10"}
	m := testMonitor(t, nil)
	m.ticksPerScan = 1
	m.discoverer = &fakeDiscoverer{passes: [][]types.NetworkDevice{
		{dev},
		nil, // absent in the second pass
	}}

	m.tick(context.Background())
	firstSeen := m.Snapshot().Devices[0].FirstSeen

	m.tick(context.Background())
	devices := m.Snapshot().Devices
	if len(devices) != 1 {
		t.Fatalf("devices=%d", len(devices))
	}
	if devices[0].Active {
		t.Fatal("expected inactive after missed pass")
	}
	if !devices[0].FirstSeen.Equal(firstSeen) {
		t.Fatalf("first_seen changed: %v -> %v", firstSeen, devices[0].FirstSeen)
	}
}

func TestTick_DeviceScanCadence(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, func(cfg *config.Config) {
		cfg.DeviceScanIntervalSec = 3
	})
	disc := &fakeDiscoverer{passes: [][]types.NetworkDevice{nil}}
	m.discoverer = disc

	for i := 0; i < 6; i++ {
		m.tick(context.Background())
	}
	if disc.i != 2 {
		t.Fatalf("discovery passes=%d want 2", disc.i)
	}
}

func TestTick_TrafficSpikeRaisesAlert(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, nil)
	m.sampler = &fakeSampler{samples: []types.SpeedSample{
		{DownloadBps: 100}, {DownloadBps: 100}, {DownloadBps: 100},
		{DownloadBps: 100}, {DownloadBps: 400},
	}}

	for i := 0; i < 5; i++ {
		m.tick(context.Background())
	}

	snap := m.Snapshot()
	found := false
	for _, a := range snap.Alerts {
		if a.Kind == types.AlertTrafficAnomaly {
			found = true
		}
	}
	if !found {
		t.Fatalf("no traffic anomaly in %+v", snap.Alerts)
	}
}

func TestTick_SamplerDegradesToLastValue(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, nil)
	m.sampler = &fakeSampler{
		samples: []types.SpeedSample{{DownloadBps: 1024}},
		errs:    []error{nil, errors.New("permission denied")},
	}

	m.tick(context.Background())
	m.tick(context.Background())

	snap := m.Snapshot()
	if len(snap.Samples) != 2 {
		t.Fatalf("samples=%d", len(snap.Samples))
	}
	if snap.Latest().DownloadBps != 1024 {
		t.Fatalf("degraded sample=%+v", snap.Latest())
	}
}

func TestTick_TrackerDegradesToLastSet(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, nil)
	conns := []types.Connection{{Process: "firefox", LocalAddr: "10.0.0.1:1", Status: types.StatusEstablished}}
	tr := &fakeTracker{conns: conns}
	m.tracker = tr

	m.tick(context.Background())
	tr.conns, tr.err = nil, errors.New("unavailable")
	m.tick(context.Background())

	snap := m.Snapshot()
	if len(snap.Connections) != 1 || snap.Connections[0].Process != "firefox" {
		t.Fatalf("connections=%+v", snap.Connections)
	}
}

func TestSnapshot_IdempotentBetweenTicks(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, nil)
	m.tick(context.Background())

	a, b := m.Snapshot(), m.Snapshot()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("snapshots differ:\n%+v\n%+v", a, b)
	}
}

func TestAlerts_Bounded(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, func(cfg *config.Config) {
		cfg.MaxAlerts = 5
		cfg.Detection.PortScanThreshold = 1
		cfg.Detection.PortScanHighThreshold = 2
	})
	m.tracker = &fakeTracker{conns: []types.Connection{
		{RemoteAddr: "203.0.113.7:1", Status: types.StatusOther},
		{RemoteAddr: "203.0.113.7:2", Status: types.StatusOther},
		{RemoteAddr: "203.0.113.7:3", Status: types.StatusOther},
	}}

	for i := 0; i < 10; i++ {
		m.tick(context.Background())
	}
	if n := len(m.Snapshot().Alerts); n != 5 {
		t.Fatalf("alerts=%d want 5", n)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	m := testMonitor(t, nil)
	if m.Running() {
		t.Fatal("running before start")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start err=%v", err)
	}
	if !m.Running() {
		t.Fatal("not running after start")
	}

	// The immediate first tick publishes before long.
	deadline := time.Now().Add(2 * time.Second)
	for len(m.Snapshot().Samples) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no sample published")
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.Stop()
	if m.Running() {
		t.Fatal("running after stop")
	}
	m.Stop() // idempotent
}
