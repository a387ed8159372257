package registry

import (
	"context"
	"net"
	"strconv"
)

// DefaultNodePort is the standard munin node listener port.
const DefaultNodePort = 4949

// Host describes one munin node known to the updater.
type Host struct {
	Name          string
	Address       string
	Port          int
	UpdateEnabled bool
}

// Addr returns the dial address for the node.
func (h Host) Addr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// Source enumerates known hosts. Enumeration order is meaningful and must be
// stable within one call.
type Source interface {
	Hosts(ctx context.Context) ([]Host, error)
}

// Select applies, in order, the allow-list name filter (when non-empty) and
// the update-eligibility filter. Enumeration order is preserved.
func Select(hosts []Host, allowList []string) []Host {
	if len(allowList) > 0 {
		allowed := make(map[string]bool, len(allowList))
		for _, name := range allowList {
			allowed[name] = true
		}
		filtered := make([]Host, 0, len(hosts))
		for _, host := range hosts {
			if allowed[host.Name] {
				filtered = append(filtered, host)
			}
		}
		hosts = filtered
	}

	eligible := make([]Host, 0, len(hosts))
	for _, host := range hosts {
		if host.UpdateEnabled {
			eligible = append(eligible, host)
		}
	}
	return eligible
}

// MultiSource concatenates the enumerations of several sources.
type MultiSource struct {
	sources []Source
}

// NewMulti creates a source that enumerates all provided sources in order.
func NewMulti(sources ...Source) *MultiSource {
	filtered := make([]Source, 0, len(sources))
	for _, source := range sources {
		if source == nil {
			continue
		}
		filtered = append(filtered, source)
	}
	return &MultiSource{sources: filtered}
}

// Hosts implements Source.
func (m *MultiSource) Hosts(ctx context.Context) ([]Host, error) {
	var hosts []Host
	for _, source := range m.sources {
		enumerated, err := source.Hosts(ctx)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, enumerated...)
	}
	return hosts, nil
}
