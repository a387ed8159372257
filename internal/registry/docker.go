package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"
)

const defaultAPITimeout = 5 * time.Second

// Container labels read by the discovery source. A container opts in with
// munin.node=true; the remaining labels override the derived host fields.
const (
	labelNode    = "munin.node"
	labelAddress = "munin.address"
	labelPort    = "munin.port"
	labelUpdate  = "munin.update"
)

// DockerSource discovers munin nodes from labeled containers via the Docker
// Engine API.
type DockerSource struct {
	api     *client.Client
	logger  zerolog.Logger
	timeout time.Duration
}

// NewDockerSource initializes a discovery source for the given API host.
func NewDockerSource(host string, timeout time.Duration, logger zerolog.Logger) (*DockerSource, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	httpClient := &http.Client{Timeout: timeout}

	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
		client.WithHTTPClient(httpClient),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	return &DockerSource{
		api:     api,
		logger:  logger,
		timeout: timeout,
	}, nil
}

// Ping validates connectivity to the Docker daemon.
func (s *DockerSource) Ping(ctx context.Context) error {
	if s == nil || s.api == nil {
		return errors.New("docker client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.api.Ping(ctx)
	return err
}

// Hosts implements Source. Containers with unusable labels are skipped with
// a warning rather than failing the whole enumeration.
func (s *DockerSource) Hosts(ctx context.Context) ([]Host, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := filters.NewArgs(filters.Arg("label", labelNode+"=true"))
	containers, err := s.api.ContainerList(ctx, container.ListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	hosts := make([]Host, 0, len(containers))
	for _, ctr := range containers {
		name := containerName(ctr.Names, ctr.ID)
		host := Host{
			Name:          name,
			Address:       name,
			Port:          DefaultNodePort,
			UpdateEnabled: true,
		}
		if value := ctr.Labels[labelAddress]; value != "" {
			host.Address = value
		}
		if value := ctr.Labels[labelPort]; value != "" {
			port, err := nat.ParsePort(value)
			if err != nil {
				s.logger.Warn().Err(err).Str("container", name).Msg("invalid munin.port label, skipping container")
				continue
			}
			host.Port = port
		}
		if value := ctr.Labels[labelUpdate]; value != "" {
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				s.logger.Warn().Err(err).Str("container", name).Msg("invalid munin.update label, skipping container")
				continue
			}
			host.UpdateEnabled = enabled
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// Close releases the underlying API client.
func (s *DockerSource) Close() error {
	if s == nil || s.api == nil {
		return nil
	}
	return s.api.Close()
}

func containerName(names []string, id string) string {
	for _, name := range names {
		trimmed := strings.TrimPrefix(name, "/")
		if trimmed != "" {
			return trimmed
		}
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
