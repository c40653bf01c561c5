// internal/hostinfo/host.go
package hostinfo

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

// Identity describes the machine an agent runs on
type Identity struct {
	Hostname  string
	OS        string
	OSVersion string
}

// Host is the live view of the local machine.
// Every call re-reads the system; nothing is cached between calls.
type Host struct{}

// New returns a Host for the local machine
func New() *Host {
	return &Host{}
}

// Identity returns hostname, OS family and OS version
func (h *Host) Identity(ctx context.Context) (Identity, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return Identity{OS: runtime.GOOS}, fmt.Errorf("host info: %w", err)
	}

	id := Identity{
		Hostname:  info.Hostname,
		OS:        info.OS,
		OSVersion: strings.TrimSpace(info.Platform + " " + info.PlatformVersion),
	}
	if id.OS == "" {
		id.OS = runtime.GOOS
	}
	if id.OSVersion == "" {
		id.OSVersion = info.KernelVersion
	}
	return id, nil
}

// IPAddresses returns the host's addresses excluding loopback and link-local,
// sorted and de-duplicated
func (h *Host) IPAddresses() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return []string{}
	}
	return filterAddrs(addrs)
}

func filterAddrs(addrs []net.Addr) []string {
	seen := make(map[string]bool)
	ips := []string{}
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			continue
		}
		s := ip.String()
		if !seen[s] {
			seen[s] = true
			ips = append(ips, s)
		}
	}
	sort.Strings(ips)
	return ips
}

// ProcessNames returns the names of all running processes
func (h *Host) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		// processes can exit between listing and reading
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// PortInUse reports whether a local TCP port is taken by attempting to bind it.
// A successful bind is released immediately.
func (h *Host) PortInUse(port int) bool {
	return PortInUse(port)
}

// PortInUse is the bind test shared by the collector and port_open checks
func PortInUse(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return true
	}
	l.Close()
	return false
}
