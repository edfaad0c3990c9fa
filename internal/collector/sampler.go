package collector

import (
	"fmt"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"

	"netsentry/pkg/types"
)

// Sampler turns raw interface byte counters into per-second rates. It keeps
// the previous raw reading internally so each Sample call is a delta against
// the last one; the first call after startup has no prior reading and
// reports zero rates.
type Sampler struct {
	iface string

	readCounters func() (recv, sent uint64, err error)
	countConns   func() (int, error)
	now          func() time.Time

	lastRecv uint64
	lastSent uint64
	lastTime time.Time
	primed   bool
}

// NewSampler returns a sampler for the named interface, or for the sum of
// all non-loopback interfaces when iface is empty.
func NewSampler(iface string) *Sampler {
	s := &Sampler{
		iface: iface,
		now:   time.Now,
	}
	s.readCounters = s.readSystemCounters
	s.countConns = countSystemConns
	return s
}

// Sample reads the counters and returns the rates since the previous call.
func (s *Sampler) Sample() (types.SpeedSample, error) {
	recv, sent, err := s.readCounters()
	if err != nil {
		return types.SpeedSample{}, err
	}

	now := s.now()
	sample := types.SpeedSample{Timestamp: now}

	if s.primed {
		elapsed := now.Sub(s.lastTime).Seconds()
		if elapsed > 0 {
			// Counters can reset (interface down/up); treat a
			// backwards jump as a zero-rate interval.
			if recv >= s.lastRecv {
				sample.DownloadBps = float64(recv-s.lastRecv) / elapsed
			}
			if sent >= s.lastSent {
				sample.UploadBps = float64(sent-s.lastSent) / elapsed
			}
		}
	}

	s.lastRecv = recv
	s.lastSent = sent
	s.lastTime = now
	s.primed = true

	if n, err := s.countConns(); err == nil {
		sample.Connections = n
	}
	return sample, nil
}

func (s *Sampler) readSystemCounters() (uint64, uint64, error) {
	counters, err := psnet.IOCounters(true)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get network counters: %w", err)
	}

	var recv, sent uint64
	for _, counter := range counters {
		if counter.Name == "lo" || counter.Name == "lo0" {
			continue
		}
		if s.iface != "" && counter.Name != s.iface {
			continue
		}
		recv += counter.BytesRecv
		sent += counter.BytesSent
	}
	return recv, sent, nil
}

func countSystemConns() (int, error) {
	conns, err := psnet.Connections("inet")
	if err != nil {
		return 0, fmt.Errorf("failed to get connections: %w", err)
	}
	return len(conns), nil
}
