package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"netsentry/pkg/types"
)

type stubCore struct {
	snap    types.Snapshot
	running bool
}

func (s *stubCore) Snapshot() types.Snapshot { return s.snap }
func (s *stubCore) Running() bool            { return s.running }

func testCore() *stubCore {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &stubCore{
		running: true,
		snap: types.Snapshot{
			TakenAt: now,
			Samples: []types.SpeedSample{
				{Timestamp: now, DownloadBps: 2048, UploadBps: 1024, Connections: 12},
			},
			Connections: []types.Connection{
				{Process: "firefox", LocalAddr: "192.168.1.5:40000", RemoteAddr: "93.184.216.34:443", Status: types.StatusEstablished},
				{Process: "sshd", LocalAddr: "0.0.0.0:22", Status: types.StatusListening},
			},
			Devices: []types.NetworkDevice{
				{MAC: "aa:bb:cc:dd:ee:ff", IP: "192.168.1.10", Type: types.DeviceRouter, Active: true, FirstSeen: now},
			},
			Alerts: []types.Alert{
				{ID: "a1", Kind: types.AlertPortScan, Severity: types.SeverityHigh, Timestamp: now, Subject: "203.0.113.7"},
			},
		},
	}
}

func getJSON(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("unmarshal %s: %v (%s)", path, err, body)
		}
	}
	return resp.StatusCode
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := NewServer(testCore(), zerolog.Nop())
	var got statsResponse
	if code := getJSON(t, s, "/api/network/stats", &got); code != 200 {
		t.Fatalf("status=%d", code)
	}
	if got.DownloadSpeed != 2048 || got.UploadSpeed != 1024 || got.Connections != 12 {
		t.Fatalf("stats=%+v", got)
	}
}

func TestConnections_MissingRemoteIsNA(t *testing.T) {
	t.Parallel()

	s := NewServer(testCore(), zerolog.Nop())
	var got []connectionResponse
	if code := getJSON(t, s, "/api/network/connections", &got); code != 200 {
		t.Fatalf("status=%d", code)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].RemoteAddress != "93.184.216.34:443" {
		t.Fatalf("remote=%q", got[0].RemoteAddress)
	}
	if got[1].RemoteAddress != "N/A" || got[1].Status != "LISTENING" {
		t.Fatalf("listener=%+v", got[1])
	}
}

func TestDevices_IncludesFirstSeen(t *testing.T) {
	t.Parallel()

	s := NewServer(testCore(), zerolog.Nop())
	var got []map[string]any
	if code := getJSON(t, s, "/api/network/devices", &got); code != 200 {
		t.Fatalf("status=%d", code)
	}
	if len(got) != 1 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0]["mac"] != "aa:bb:cc:dd:ee:ff" || got[0]["active"] != true {
		t.Fatalf("device=%v", got[0])
	}
	if _, ok := got[0]["first_seen"]; !ok {
		t.Fatal("first_seen missing from payload")
	}
}

func TestAlertsAndHealth(t *testing.T) {
	t.Parallel()

	core := testCore()
	s := NewServer(core, zerolog.Nop())

	var alerts []types.Alert
	if code := getJSON(t, s, "/api/alerts", &alerts); code != 200 {
		t.Fatalf("status=%d", code)
	}
	if len(alerts) != 1 || alerts[0].Kind != types.AlertPortScan {
		t.Fatalf("alerts=%+v", alerts)
	}

	var health healthResponse
	getJSON(t, s, "/api/health", &health)
	if !health.Running || health.Status != "ok" {
		t.Fatalf("health=%+v", health)
	}

	core.running = false
	getJSON(t, s, "/api/health", &health)
	if health.Running || health.Status != "stopped" {
		t.Fatalf("health=%+v", health)
	}
}

func TestEmptySnapshot_StructurallyValid(t *testing.T) {
	t.Parallel()

	s := NewServer(&stubCore{}, zerolog.Nop())

	var devices []any
	getJSON(t, s, "/api/network/devices", &devices)
	if devices == nil {
		t.Fatal("devices should be [] not null")
	}

	var stats statsResponse
	getJSON(t, s, "/api/network/stats", &stats)
	if stats.DownloadSpeed != 0 || stats.Connections != 0 {
		t.Fatalf("stats=%+v", stats)
	}
}
