package collector

import (
	"fmt"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"netsentry/pkg/types"
)

// Tracker enumerates OS-visible sockets and resolves their owning process
// names. Each List call is a full re-enumeration; no identity is carried
// between calls. Process names are cached per PID since name lookups are
// the expensive part of a tick.
type Tracker struct {
	denylist []string

	listConns func() ([]psnet.ConnectionStat, error)
	procName  func(pid int32) (string, error)

	nameCache map[int32]string
}

// NewTracker returns a tracker whose Filter method excludes processes
// matching the given denylist substrings.
func NewTracker(denylist []string) *Tracker {
	return &Tracker{
		denylist:  denylist,
		listConns: listSystemConns,
		procName:  systemProcName,
		nameCache: make(map[int32]string),
	}
}

func listSystemConns() ([]psnet.ConnectionStat, error) {
	conns, err := psnet.Connections("inet")
	if err != nil {
		return nil, fmt.Errorf("failed to get connections: %w", err)
	}
	return conns, nil
}

func systemProcName(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return proc.Name()
}

// List returns the current connection set. Connections without an owning
// process keep an empty process name rather than being dropped, so counts
// stay a correct point-in-time measurement.
func (t *Tracker) List() ([]types.Connection, error) {
	raw, err := t.listConns()
	if err != nil {
		return nil, err
	}

	seen := make(map[int32]bool, len(raw))
	conns := make([]types.Connection, 0, len(raw))
	for _, c := range raw {
		conn := types.Connection{
			PID:       c.Pid,
			LocalAddr: formatAddr(c.Laddr),
			Status:    classifyStatus(c.Status),
		}
		if c.Raddr.IP != "" {
			conn.RemoteAddr = formatAddr(c.Raddr)
		}
		if c.Pid != 0 {
			conn.Process = t.lookupName(c.Pid)
			seen[c.Pid] = true
		}
		conns = append(conns, conn)
	}

	// Drop cache entries for PIDs that no longer own any socket.
	for pid := range t.nameCache {
		if !seen[pid] {
			delete(t.nameCache, pid)
		}
	}

	return conns, nil
}

// Filter returns the subset of conns not matching the denylist. With
// excludeSystem false the input is returned unchanged.
func (t *Tracker) Filter(conns []types.Connection, excludeSystem bool) []types.Connection {
	if !excludeSystem {
		return conns
	}

	out := make([]types.Connection, 0, len(conns))
	for _, c := range conns {
		if t.isSystem(c.Process) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (t *Tracker) isSystem(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, entry := range t.denylist {
		if strings.Contains(lower, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

func (t *Tracker) lookupName(pid int32) string {
	if name, ok := t.nameCache[pid]; ok {
		return name
	}
	name, err := t.procName(pid)
	if err != nil || name == "" {
		name = fmt.Sprintf("PID %d", pid)
	}
	t.nameCache[pid] = name
	return name
}

func classifyStatus(status string) types.ConnStatus {
	switch status {
	case "ESTABLISHED":
		return types.StatusEstablished
	case "LISTEN":
		return types.StatusListening
	default:
		return types.StatusOther
	}
}

func formatAddr(addr psnet.Addr) string {
	return fmt.Sprintf("%s:%d", addr.IP, addr.Port)
}
