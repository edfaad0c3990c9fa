package types

import "time"

// ConnStatus classifies the state of a tracked socket.
type ConnStatus string

const (
	StatusEstablished ConnStatus = "ESTABLISHED"
	StatusListening   ConnStatus = "LISTENING"
	StatusOther       ConnStatus = "OTHER"
)

// SpeedSample is one measurement of network throughput, taken once per tick.
// Samples are immutable once created.
type SpeedSample struct {
	Timestamp   time.Time `json:"timestamp"`
	DownloadBps float64   `json:"download_speed"`
	UploadBps   float64   `json:"upload_speed"`
	Connections int       `json:"connections"`
}

// Connection is one OS-visible socket, fully recomputed each tick. No
// identity is carried between ticks.
type Connection struct {
	Process    string     `json:"process"`
	PID        int32      `json:"pid,omitempty"`
	LocalAddr  string     `json:"local_address"`
	RemoteAddr string     `json:"remote_address,omitempty"`
	Status     ConnStatus `json:"status"`
}

// DeviceType is a coarse classification of a discovered device.
type DeviceType string

const (
	DeviceSmartphone DeviceType = "smartphone"
	DeviceLaptop     DeviceType = "laptop"
	DeviceDesktop    DeviceType = "desktop"
	DeviceTablet     DeviceType = "tablet"
	DevicePrinter    DeviceType = "printer"
	DeviceRouter     DeviceType = "router"
	DeviceIoT        DeviceType = "iot"
	DeviceOther      DeviceType = "other"
)

// NetworkDevice is a device seen on the local segment. Identity is the MAC
// address: two observations with the same MAC are the same device. FirstSeen
// is set once, at first observation, and never changes afterwards.
type NetworkDevice struct {
	MAC       string     `json:"mac"`
	IP        string     `json:"ip"`
	Name      string     `json:"name,omitempty"`
	Type      DeviceType `json:"type"`
	Active    bool       `json:"active"`
	FirstSeen time.Time  `json:"first_seen"`
}

// NewInLast reports whether the device was first observed within window of now.
func (d NetworkDevice) NewInLast(window time.Duration, now time.Time) bool {
	return now.Sub(d.FirstSeen) < window
}

// AlertKind identifies the heuristic that produced an alert.
type AlertKind string

const (
	AlertPortScan       AlertKind = "PORT_SCAN"
	AlertTrafficAnomaly AlertKind = "TRAFFIC_ANOMALY"
	AlertSuspiciousConn AlertKind = "SUSPICIOUS_CONNECTION"
)

// Severity grades an alert.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Alert is an append-only event emitted by the heuristics engine. It is
// never mutated after creation.
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Details   string    `json:"details"`
}

// Snapshot is an internally consistent view of all core state at one point
// in time. Consumers receive copies and must never be handed a view that
// mutates under them.
type Snapshot struct {
	TakenAt     time.Time       `json:"taken_at"`
	Samples     []SpeedSample   `json:"speed_samples"`
	Connections []Connection    `json:"connections"`
	Devices     []NetworkDevice `json:"devices"`
	Alerts      []Alert         `json:"alerts"`
}

// Latest returns the most recent speed sample, or a zero sample when none
// has been collected yet.
func (s *Snapshot) Latest() SpeedSample {
	if len(s.Samples) == 0 {
		return SpeedSample{}
	}
	return s.Samples[len(s.Samples)-1]
}
