package dump

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Encode writes the set in the flat datafile form, one line per leaf
// attribute:
//
//	<host>:<service>.<path> <value>
//
// Per service all global attributes are written first, then all data-source
// attributes. Hosts, services, data sources and data-source attributes are
// emitted in sorted order so equal sets encode to identical bytes; global
// attributes keep their recorded order.
func Encode(w io.Writer, set HostConfigSet) error {
	bw := bufio.NewWriter(w)
	for _, host := range sortedKeys(set) {
		services := set[host]
		for _, name := range sortedKeys(services) {
			cfg := services[name]
			for _, attr := range cfg.Global {
				key := strings.Join(append([]string{name}, attr.Path...), ".")
				if _, err := fmt.Fprintf(bw, "%s:%s %s\n", host, key, attr.Value); err != nil {
					return err
				}
			}
			for _, ds := range sortedKeys(cfg.DataSource) {
				attrs := cfg.DataSource[ds]
				for _, attr := range sortedKeys(attrs) {
					if _, err := fmt.Fprintf(bw, "%s:%s.%s.%s %s\n", host, name, ds, attr, attrs[attr]); err != nil {
						return err
					}
				}
			}
		}
	}
	return bw.Flush()
}

// Decode parses the flat datafile form back into a HostConfigSet. Each
// non-empty line splits on the first ':' into host and remainder, the
// remainder on the first space into key and value, and the key on '.' into
// service plus attribute path. A two-segment path addresses a data-source
// attribute; any other depth is a global attribute. Lines missing the host
// or value separator are skipped.
func Decode(r io.Reader) (HostConfigSet, error) {
	set := HostConfigSet{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		host, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(rest, " ")
		if !ok {
			continue
		}
		segments := strings.Split(key, ".")
		service := segments[0]
		set.Service(host, service).SetPath(segments[1:], value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan datafile: %w", err)
	}
	return set, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
