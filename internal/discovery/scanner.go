package discovery

import (
	"bufio"
	"context"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v3/net"

	"netsentry/pkg/types"
)

const arpTablePath = "/proc/net/arp"

// Discoverer produces device observations for one discovery pass. Active
// state and first-seen tracking belong to the Registry, not here.
type Discoverer interface {
	Discover(ctx context.Context) ([]types.NetworkDevice, error)
}

// Scanner discovers devices from the kernel ARP table, confirming
// reachability with an echo probe and enriching each host with a
// reverse-DNS name and a port-derived device type. Hosts without an ARP
// entry have no MAC and therefore no identity, so they are not reported.
type Scanner struct {
	log          zerolog.Logger
	probeTimeout time.Duration

	readNeighbors   func() (map[string]string, error)
	remoteEndpoints func() (map[string][]uint32, error)
	lookupName      func(ctx context.Context, ip string) string
	probe           func(ctx context.Context, ip string) bool
}

// NewScanner returns a scanner using the local ARP table.
func NewScanner(log zerolog.Logger) *Scanner {
	s := &Scanner{
		log:          log,
		probeTimeout: 2 * time.Second,
	}
	s.readNeighbors = readARPTable
	s.remoteEndpoints = connectionEndpoints
	s.lookupName = reverseLookup
	s.probe = s.probeHost
	return s
}

// Discover runs one pass and returns the observed devices.
func (s *Scanner) Discover(ctx context.Context) ([]types.NetworkDevice, error) {
	neighbors, err := s.readNeighbors()
	if err != nil {
		return nil, err
	}

	ports, err := s.remoteEndpoints()
	if err != nil {
		// Port information only refines classification; a pass
		// without it is still valid.
		s.log.Debug().Err(err).Msg("no endpoint data for device classification")
		ports = nil
	}

	ips := make([]string, 0, len(neighbors))
	for ip := range neighbors {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	var observed []types.NetworkDevice
	for _, ip := range ips {
		if ctx.Err() != nil {
			return observed, ctx.Err()
		}
		if !s.probe(ctx, ip) {
			continue
		}
		observed = append(observed, types.NetworkDevice{
			MAC:  neighbors[ip],
			IP:   ip,
			Name: s.lookupName(ctx, ip),
			Type: classifyPorts(ports[ip]),
		})
	}
	return observed, nil
}

// readARPTable parses /proc/net/arp into an IP to MAC map, skipping
// incomplete entries.
func readARPTable() (map[string]string, error) {
	f, err := os.Open(arpTablePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	neighbors := make(map[string]string)
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		ip, mac := fields[0], fields[3]
		if mac == "00:00:00:00:00:00" {
			continue
		}
		neighbors[ip] = mac
	}
	return neighbors, scanner.Err()
}

// connectionEndpoints groups the remote ports of current sockets by remote
// IP, used for port-based device classification.
func connectionEndpoints() (map[string][]uint32, error) {
	conns, err := psnet.Connections("inet")
	if err != nil {
		return nil, err
	}

	ports := make(map[string][]uint32)
	for _, c := range conns {
		if c.Raddr.IP == "" {
			continue
		}
		ports[c.Raddr.IP] = append(ports[c.Raddr.IP], c.Raddr.Port)
	}
	return ports, nil
}

func reverseLookup(ctx context.Context, ip string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(lookupCtx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// wellKnownPorts maps service ports to the device type they suggest.
var wellKnownPorts = map[uint32]types.DeviceType{
	53:   types.DeviceRouter, // DNS
	67:   types.DeviceRouter, // DHCP
	68:   types.DeviceRouter, // DHCP
	631:  types.DevicePrinter,
	9100: types.DevicePrinter,
	5353: types.DeviceIoT, // mDNS
	1900: types.DeviceIoT, // SSDP
	8883: types.DeviceIoT, // MQTT
	22:   types.DeviceDesktop,
	80:   types.DeviceDesktop,
	443:  types.DeviceDesktop,
	445:  types.DeviceDesktop,
	3389: types.DeviceDesktop,
}

// classifyPorts guesses a device type from the ports observed on it. The
// precedence order keeps infrastructure guesses (router, printer, iot)
// ahead of the generic desktop buckets; hosts seen only on ephemeral ports
// are most likely mobile.
func classifyPorts(ports []uint32) types.DeviceType {
	if len(ports) == 0 {
		return types.DeviceOther
	}

	counts := make(map[types.DeviceType]int)
	allEphemeral := true
	for _, p := range ports {
		if t, ok := wellKnownPorts[p]; ok {
			counts[t]++
		}
		if p < 49152 {
			allEphemeral = false
		}
	}

	for _, t := range []types.DeviceType{
		types.DeviceRouter, types.DevicePrinter, types.DeviceIoT, types.DeviceDesktop,
	} {
		if counts[t] > 0 {
			return t
		}
	}
	if allEphemeral {
		return types.DeviceSmartphone
	}
	return types.DeviceOther
}
