package diff

import (
	"sort"
	"strings"

	"github.com/nholik/munin-update/internal/dump"
)

// Kind classifies a configuration transition.
type Kind string

const (
	KindHostAdded      Kind = "host-added"
	KindHostRemoved    Kind = "host-removed"
	KindServiceAdded   Kind = "service-added"
	KindServiceRemoved Kind = "service-removed"
	KindAttrChanged    Kind = "attribute-changed"
)

// Transition records one observed change between the previously persisted
// configuration and the freshly collected one. For attribute changes an
// empty Previous means the attribute appeared and an empty Current means it
// disappeared.
type Transition struct {
	Kind     Kind
	Host     string
	Service  string
	Attr     string
	Previous string
	Current  string
}

// Detect compares two host configuration sets and returns transitions sorted
// for deterministic output. A first run (empty previous set) produces no
// transitions: everything would otherwise report as added.
func Detect(previous, current dump.HostConfigSet) []Transition {
	if len(previous) == 0 {
		return nil
	}

	transitions := make([]Transition, 0)

	for host, services := range current {
		prevServices, hadHost := previous[host]
		if !hadHost {
			transitions = append(transitions, Transition{Kind: KindHostAdded, Host: host})
			continue
		}
		transitions = append(transitions, detectServices(host, prevServices, services)...)
	}

	for host := range previous {
		if _, ok := current[host]; !ok {
			transitions = append(transitions, Transition{Kind: KindHostRemoved, Host: host})
		}
	}

	sort.Slice(transitions, func(i, j int) bool {
		a, b := transitions[i], transitions[j]
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.Attr != b.Attr {
			return a.Attr < b.Attr
		}
		return a.Kind < b.Kind
	})

	return transitions
}

func detectServices(host string, previous, current map[string]*dump.ServiceConfig) []Transition {
	transitions := make([]Transition, 0)

	for service, cfg := range current {
		prevCfg, hadService := previous[service]
		if !hadService {
			transitions = append(transitions, Transition{Kind: KindServiceAdded, Host: host, Service: service})
			continue
		}
		transitions = append(transitions, detectAttrs(host, service, flatten(prevCfg), flatten(cfg))...)
	}

	for service := range previous {
		if _, ok := current[service]; !ok {
			transitions = append(transitions, Transition{Kind: KindServiceRemoved, Host: host, Service: service})
		}
	}

	return transitions
}

func detectAttrs(host, service string, previous, current map[string]string) []Transition {
	transitions := make([]Transition, 0)

	for attr, value := range current {
		if prev, ok := previous[attr]; !ok || prev != value {
			transitions = append(transitions, Transition{
				Kind:     KindAttrChanged,
				Host:     host,
				Service:  service,
				Attr:     attr,
				Previous: previous[attr],
				Current:  value,
			})
		}
	}

	for attr, value := range previous {
		if _, ok := current[attr]; !ok {
			transitions = append(transitions, Transition{
				Kind:     KindAttrChanged,
				Host:     host,
				Service:  service,
				Attr:     attr,
				Previous: value,
			})
		}
	}

	return transitions
}

// flatten maps every attribute of a service configuration to its dotted key:
// global paths joined with '.', data-source attributes as "<ds>.<attr>".
func flatten(cfg *dump.ServiceConfig) map[string]string {
	flat := make(map[string]string)
	if cfg == nil {
		return flat
	}
	for _, attr := range cfg.Global {
		flat[strings.Join(attr.Path, ".")] = attr.Value
	}
	for ds, attrs := range cfg.DataSource {
		for attr, value := range attrs {
			flat[ds+"."+attr] = value
		}
	}
	return flat
}
