package security

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"netsentry/pkg/types"
)

// Config holds the heuristic thresholds. All of them are injected so the
// rules are testable in isolation.
type Config struct {
	// PortScanThreshold flags a source once it has touched more than
	// this many distinct ports; PortScanHighThreshold upgrades severity.
	PortScanThreshold     int
	PortScanHighThreshold int

	// TrafficMultiplier flags the latest sample once it exceeds the mean
	// of the preceding samples by this factor. TrafficMinSamples guards
	// against cold-start false positives.
	TrafficMultiplier float64
	TrafficMinSamples int

	// TrustedProcesses are never flagged by the suspicious-connection
	// rule. Matching is case-insensitive on the exact name.
	TrustedProcesses []string
}

// Engine evaluates rule-based heuristics over a connection set and recent
// speed samples. Evaluation is a deterministic function of its inputs: the
// engine performs no I/O and keeps no state between calls.
type Engine struct {
	cfg     Config
	trusted map[string]bool

	now   func() time.Time
	newID func() string
}

// NewEngine returns an engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	trusted := make(map[string]bool, len(cfg.TrustedProcesses))
	for _, name := range cfg.TrustedProcesses {
		trusted[strings.ToLower(name)] = true
	}
	return &Engine{
		cfg:     cfg,
		trusted: trusted,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Evaluate runs every rule independently and returns the alerts raised.
func (e *Engine) Evaluate(conns []types.Connection, samples []types.SpeedSample) []types.Alert {
	var alerts []types.Alert

	alerts, scanners := e.detectPortScans(alerts, conns)
	alerts = e.detectTrafficAnomaly(alerts, samples)
	alerts = e.detectSuspiciousConns(alerts, conns, scanners)

	return alerts
}

// detectPortScans groups connections by remote host and flags sources
// touching more distinct ports than the threshold. Returns the set of
// flagged hosts so the suspicious-connection rule can escalate matches.
func (e *Engine) detectPortScans(alerts []types.Alert, conns []types.Connection) ([]types.Alert, map[string]bool) {
	portsBySource := make(map[string]map[string]bool)
	for _, c := range conns {
		host, port, err := net.SplitHostPort(c.RemoteAddr)
		if err != nil || host == "" {
			continue
		}
		if portsBySource[host] == nil {
			portsBySource[host] = make(map[string]bool)
		}
		portsBySource[host][port] = true
	}

	hosts := make([]string, 0, len(portsBySource))
	for host := range portsBySource {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	scanners := make(map[string]bool)
	for _, host := range hosts {
		count := len(portsBySource[host])
		if count <= e.cfg.PortScanThreshold {
			continue
		}
		severity := types.SeverityMedium
		if count > e.cfg.PortScanHighThreshold {
			severity = types.SeverityHigh
		}
		scanners[host] = true
		alerts = append(alerts, types.Alert{
			ID:        e.newID(),
			Kind:      types.AlertPortScan,
			Severity:  severity,
			Timestamp: e.now(),
			Subject:   host,
			Details:   fmt.Sprintf("%d distinct ports touched by %s", count, host),
		})
	}
	return alerts, scanners
}

// detectTrafficAnomaly compares the latest sample against the mean of the
// samples before it.
func (e *Engine) detectTrafficAnomaly(alerts []types.Alert, samples []types.SpeedSample) []types.Alert {
	if len(samples) < e.cfg.TrafficMinSamples {
		return alerts
	}

	latest := samples[len(samples)-1]
	prior := samples[:len(samples)-1]

	var sumDown, sumUp float64
	for _, s := range prior {
		sumDown += s.DownloadBps
		sumUp += s.UploadBps
	}
	n := float64(len(prior))
	meanDown, meanUp := sumDown/n, sumUp/n

	check := func(direction string, rate, mean float64) {
		if mean <= 0 || rate <= mean*e.cfg.TrafficMultiplier {
			return
		}
		alerts = append(alerts, types.Alert{
			ID:        e.newID(),
			Kind:      types.AlertTrafficAnomaly,
			Severity:  types.SeverityMedium,
			Timestamp: e.now(),
			Subject:   direction,
			Details: fmt.Sprintf("%s rate %.0f B/s exceeds %.1fx rolling mean %.0f B/s",
				direction, rate, e.cfg.TrafficMultiplier, mean),
		})
	}
	check("download", latest.DownloadBps, meanDown)
	check("upload", latest.UploadBps, meanUp)
	return alerts
}

// detectSuspiciousConns flags established connections from untrusted
// processes to public addresses. Severity is LOW, escalated to MEDIUM when
// the remote host was also flagged as a port scanner in this evaluation.
func (e *Engine) detectSuspiciousConns(alerts []types.Alert, conns []types.Connection, scanners map[string]bool) []types.Alert {
	for _, c := range conns {
		if c.Status != types.StatusEstablished {
			continue
		}
		if c.Process == "" || e.trusted[strings.ToLower(c.Process)] {
			continue
		}
		host, _, err := net.SplitHostPort(c.RemoteAddr)
		if err != nil || !isPublicAddr(host) {
			continue
		}

		severity := types.SeverityLow
		if scanners[host] {
			severity = types.SeverityMedium
		}
		alerts = append(alerts, types.Alert{
			ID:        e.newID(),
			Kind:      types.AlertSuspiciousConn,
			Severity:  severity,
			Timestamp: e.now(),
			Subject:   c.Process,
			Details:   fmt.Sprintf("%s established to external address %s", c.Process, c.RemoteAddr),
		})
	}
	return alerts
}

func isPublicAddr(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified())
}
