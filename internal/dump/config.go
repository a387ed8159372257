package dump

// GlobalAttr is one service-level attribute not bound to a data source.
// The path is the dot-split attribute key; most attributes have a single
// segment but the codec round-trips arbitrary depth.
type GlobalAttr struct {
	Path  []string
	Value string
}

// ServiceConfig holds the configuration reported by one service on one host:
// ordered global attributes plus per-data-source attribute maps.
type ServiceConfig struct {
	Global     []GlobalAttr
	DataSource map[string]map[string]string
}

// NewServiceConfig returns an empty service configuration.
func NewServiceConfig() *ServiceConfig {
	return &ServiceConfig{DataSource: map[string]map[string]string{}}
}

// SetGlobal records a global attribute. An existing path is updated in place
// so the order of first appearance is preserved.
func (c *ServiceConfig) SetGlobal(path []string, value string) {
	for i, attr := range c.Global {
		if pathEqual(attr.Path, path) {
			c.Global[i].Value = value
			return
		}
	}
	c.Global = append(c.Global, GlobalAttr{Path: append([]string(nil), path...), Value: value})
}

// SetDataSource records one data-source attribute.
func (c *ServiceConfig) SetDataSource(ds, attr, value string) {
	if c.DataSource == nil {
		c.DataSource = map[string]map[string]string{}
	}
	attrs, ok := c.DataSource[ds]
	if !ok {
		attrs = map[string]string{}
		c.DataSource[ds] = attrs
	}
	attrs[attr] = value
}

// SetPath records an attribute by its parsed path, applying the depth rule:
// exactly two segments address a data-source attribute, any other depth is a
// global attribute.
func (c *ServiceConfig) SetPath(path []string, value string) {
	if len(path) == 2 {
		c.SetDataSource(path[0], path[1], value)
		return
	}
	c.SetGlobal(path, value)
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HostConfigSet maps host name to service name to service configuration.
// It is the unit persisted to and loaded from the datafile.
type HostConfigSet map[string]map[string]*ServiceConfig

// Service returns the configuration for host/service, creating it if absent.
func (s HostConfigSet) Service(host, service string) *ServiceConfig {
	services, ok := s[host]
	if !ok {
		services = map[string]*ServiceConfig{}
		s[host] = services
	}
	cfg, ok := services[service]
	if !ok {
		cfg = NewServiceConfig()
		services[service] = cfg
	}
	return cfg
}

// Overlay returns a new set holding the receiver's entries with the given
// updates replacing them host by host. Hosts absent from updates keep their
// previous configuration; neither input is mutated.
func (s HostConfigSet) Overlay(updates HostConfigSet) HostConfigSet {
	merged := make(HostConfigSet, len(s)+len(updates))
	for host, services := range s {
		merged[host] = services
	}
	for host, services := range updates {
		merged[host] = services
	}
	return merged
}
