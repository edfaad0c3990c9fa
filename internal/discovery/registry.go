package discovery

import (
	"net"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"netsentry/pkg/types"
)

// Registry is the persisted view of every device ever observed on the
// segment, keyed by MAC. It is additive: devices missing from a discovery
// pass are marked inactive but never removed, so memory grows only with the
// number of distinct MACs seen over the process lifetime.
type Registry struct {
	log     zerolog.Logger
	devices map[string]*types.NetworkDevice
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:     log,
		devices: make(map[string]*types.NetworkDevice),
	}
}

// Merge applies one discovery pass. Unseen MACs are inserted with
// FirstSeen=now; known MACs keep their FirstSeen and update everything
// else. Devices absent from the pass flip to inactive. Observations with a
// malformed MAC or IP are discarded and logged, never merged. Returns the
// merged view.
func (r *Registry) Merge(observed []types.NetworkDevice, now time.Time) []types.NetworkDevice {
	for _, dev := range r.devices {
		dev.Active = false
	}

	for _, obs := range observed {
		hw, err := net.ParseMAC(obs.MAC)
		if err != nil {
			r.log.Warn().Str("mac", obs.MAC).Str("ip", obs.IP).
				Msg("discarding device with malformed MAC")
			continue
		}
		if _, err := netip.ParseAddr(obs.IP); err != nil {
			r.log.Warn().Str("mac", obs.MAC).Str("ip", obs.IP).
				Msg("discarding device with malformed IP")
			continue
		}
		mac := hw.String()

		dev, known := r.devices[mac]
		if !known {
			dev = &types.NetworkDevice{MAC: mac, FirstSeen: now}
			r.devices[mac] = dev
			r.order = append(r.order, mac)
			r.log.Info().Str("mac", mac).Str("ip", obs.IP).Msg("new device discovered")
		}

		dev.IP = obs.IP
		dev.Active = true
		if obs.Name != "" {
			dev.Name = obs.Name
		}
		if obs.Type != "" {
			dev.Type = obs.Type
		} else if dev.Type == "" {
			dev.Type = types.DeviceOther
		}
	}

	return r.Devices()
}

// Devices returns a copy of the registry ordered by first observation.
func (r *Registry) Devices() []types.NetworkDevice {
	out := make([]types.NetworkDevice, 0, len(r.order))
	for _, mac := range r.order {
		out = append(out, *r.devices[mac])
	}
	return out
}
