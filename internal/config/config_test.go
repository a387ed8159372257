package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MU_NODES_FILE", "/etc/munin/nodes.yml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RunDir != "/var/run/munin" {
		t.Fatalf("unexpected run dir: %s", cfg.RunDir)
	}
	if cfg.DataDir != "/var/lib/munin" {
		t.Fatalf("unexpected data dir: %s", cfg.DataDir)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.NodeTimeout != 30*time.Second {
		t.Fatalf("unexpected node timeout: %v", cfg.NodeTimeout)
	}
	if cfg.Parallel {
		t.Fatalf("expected parallel to default to false")
	}
}

func TestLoad_OverridesFromEnvironment(t *testing.T) {
	t.Setenv("MU_NODES_FILE", "/etc/munin/nodes.yml")
	t.Setenv("MU_RUN_DIR", "/tmp/run")
	t.Setenv("MU_DATA_DIR", "/tmp/data")
	t.Setenv("MU_HOSTS", "web01, db01,,  cache01 ")
	t.Setenv("MU_PARALLEL", "true")
	t.Setenv("MU_POLL_INTERVAL", "90s")
	t.Setenv("MU_NODE_TIMEOUT", "5s")
	t.Setenv("MU_HEALTH_PORT", "8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RunDir != "/tmp/run" || cfg.DataDir != "/tmp/data" {
		t.Fatalf("unexpected directories: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Hosts, []string{"web01", "db01", "cache01"}) {
		t.Fatalf("unexpected host allow-list: %v", cfg.Hosts)
	}
	if !cfg.Parallel {
		t.Fatalf("expected parallel enabled")
	}
	if cfg.PollInterval != 90*time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.NodeTimeout != 5*time.Second {
		t.Fatalf("unexpected node timeout: %v", cfg.NodeTimeout)
	}
	if cfg.HealthPort != 8080 {
		t.Fatalf("unexpected health port: %d", cfg.HealthPort)
	}
}

func TestLoad_NodesFileRequiredWithoutDockerDiscovery(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when no host source is configured")
	}
}

func TestLoad_DockerDiscoverySatisfiesHostSource(t *testing.T) {
	t.Setenv("MU_DOCKER_DISCOVERY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.DockerDiscovery {
		t.Fatalf("expected docker discovery enabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad parallel", key: "MU_PARALLEL", value: "sometimes"},
		{name: "bad poll interval", key: "MU_POLL_INTERVAL", value: "soon"},
		{name: "zero poll interval", key: "MU_POLL_INTERVAL", value: "0s"},
		{name: "negative node timeout", key: "MU_NODE_TIMEOUT", value: "-5s"},
		{name: "bad dry run", key: "MU_DRY_RUN", value: "maybe"},
		{name: "bad health port", key: "MU_HEALTH_PORT", value: "http"},
		{name: "health port out of range", key: "MU_HEALTH_PORT", value: "70000"},
		{name: "webhook without scheme", key: "MU_WEBHOOK_URL", value: "example.com/hook"},
		{name: "bad slack webhook", key: "MU_SLACK_WEBHOOK_URL", value: "not a url"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("MU_NODES_FILE", "/etc/munin/nodes.yml")
			t.Setenv(tc.key, tc.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}
