package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envRunDir          = "MU_RUN_DIR"
	envDataDir         = "MU_DATA_DIR"
	envNodesFile       = "MU_NODES_FILE"
	envHosts           = "MU_HOSTS"
	envParallel        = "MU_PARALLEL"
	envPollInterval    = "MU_POLL_INTERVAL"
	envNodeTimeout     = "MU_NODE_TIMEOUT"
	envDockerDiscovery = "MU_DOCKER_DISCOVERY"
	envDockerHost      = "MU_DOCKER_HOST"
	envWebhookURL      = "MU_WEBHOOK_URL"
	envSlackWebhookURL = "MU_SLACK_WEBHOOK_URL"
	envDryRun          = "MU_DRY_RUN"
	envHealthPort      = "MU_HEALTH_PORT"
	envMetricsPort     = "MU_METRICS_PORT"
)

const (
	defaultRunDir       = "/var/run/munin"
	defaultDataDir      = "/var/lib/munin"
	defaultPollInterval = 5 * time.Minute
	defaultNodeTimeout  = 30 * time.Second
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	RunDir          string
	DataDir         string
	NodesFile       string
	Hosts           []string
	Parallel        bool
	PollInterval    time.Duration
	NodeTimeout     time.Duration
	DockerDiscovery bool
	DockerHost      string
	WebhookURL      string
	SlackWebhookURL string
	DryRun          bool
	HealthPort      int
	MetricsPort     int
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		RunDir:       defaultRunDir,
		DataDir:      defaultDataDir,
		PollInterval: defaultPollInterval,
		NodeTimeout:  defaultNodeTimeout,
	}

	if value, ok := lookupTrimmed(envRunDir); ok {
		cfg.RunDir = value
	}

	if value, ok := lookupTrimmed(envDataDir); ok {
		cfg.DataDir = value
	}

	if value, ok := lookupTrimmed(envNodesFile); ok {
		cfg.NodesFile = value
	}

	if value, ok := lookupTrimmed(envHosts); ok {
		cfg.Hosts = splitHosts(value)
	}

	if value, ok := lookupTrimmed(envParallel); ok {
		parallel, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envParallel, err)
		}
		cfg.Parallel = parallel
	}

	if value, ok := lookupTrimmed(envPollInterval); ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPollInterval, err)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envPollInterval)
		}
		cfg.PollInterval = interval
	}

	if value, ok := lookupTrimmed(envNodeTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envNodeTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envNodeTimeout)
		}
		cfg.NodeTimeout = timeout
	}

	if value, ok := lookupTrimmed(envDockerDiscovery); ok {
		discovery, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDockerDiscovery, err)
		}
		cfg.DockerDiscovery = discovery
	}

	if value, ok := lookupTrimmed(envDockerHost); ok {
		cfg.DockerHost = value
	}

	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}

	if value, ok := lookupTrimmed(envDryRun); ok {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	if value, ok := lookupTrimmed(envHealthPort); ok {
		port, err := parsePort(value, envHealthPort)
		if err != nil {
			return Config{}, err
		}
		cfg.HealthPort = port
	}

	if value, ok := lookupTrimmed(envMetricsPort); ok {
		port, err := parsePort(value, envMetricsPort)
		if err != nil {
			return Config{}, err
		}
		cfg.MetricsPort = port
	}

	if cfg.NodesFile == "" && !cfg.DockerDiscovery {
		return Config{}, errors.New("MU_NODES_FILE is required unless MU_DOCKER_DISCOVERY is enabled")
	}

	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func splitHosts(value string) []string {
	parts := strings.Split(value, ",")
	hosts := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		hosts = append(hosts, trimmed)
	}
	return hosts
}

func parsePort(value, name string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s out of range", name)
	}
	return port, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
