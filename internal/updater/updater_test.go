package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/munin-update/internal/config"
	"github.com/nholik/munin-update/internal/dump"
	"github.com/nholik/munin-update/internal/lock"
	"github.com/nholik/munin-update/internal/registry"
	"github.com/nholik/munin-update/internal/stats"
	"github.com/rs/zerolog"
)

type staticSource struct {
	hosts []registry.Host
	calls atomic.Int32
}

func (s *staticSource) Hosts(ctx context.Context) ([]registry.Host, error) {
	s.calls.Add(1)
	return s.hosts, nil
}

type fakeCollector struct {
	configs map[string]map[string]*dump.ServiceConfig
	errs    map[string]error
}

func (c *fakeCollector) Fetch(ctx context.Context, host registry.Host) (map[string]*dump.ServiceConfig, error) {
	if err := c.errs[host.Name]; err != nil {
		return nil, err
	}
	return c.configs[host.Name], nil
}

func servicesWithTitle(title string) map[string]*dump.ServiceConfig {
	cfg := dump.NewServiceConfig()
	cfg.SetGlobal([]string{"graph_title"}, title)
	cfg.SetDataSource("load", "label", "load")
	return map[string]*dump.ServiceConfig{"load": cfg}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		RunDir:       filepath.Join(t.TempDir(), "run"),
		DataDir:      t.TempDir(),
		PollInterval: time.Minute,
		NodeTimeout:  time.Second,
	}
}

func TestUpdater_RunOncePersistsCollectedConfig(t *testing.T) {
	cfg := testConfig(t)
	source := &staticSource{hosts: []registry.Host{
		{Name: "web01", Address: "web01", Port: 4949, UpdateEnabled: true},
		{Name: "db01", Address: "db01", Port: 4949, UpdateEnabled: true},
	}}
	collector := &fakeCollector{configs: map[string]map[string]*dump.ServiceConfig{
		"web01": servicesWithTitle("Web load"),
		"db01":  servicesWithTitle("DB load"),
	}}

	u := New(zerolog.Nop(), cfg, source, WithCollector(collector))

	elapsed, err := u.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if elapsed <= 0 {
		t.Fatalf("expected positive elapsed time, got %v", elapsed)
	}

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, DatafileName))
	if err != nil {
		t.Fatalf("read datafile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "web01:load.graph_title Web load") {
		t.Fatalf("expected web01 config in datafile, got:\n%s", content)
	}
	if !strings.Contains(content, "db01:load.load.label load") {
		t.Fatalf("expected db01 data-source attribute in datafile, got:\n%s", content)
	}
}

func TestUpdater_RunOnceWritesStatsRecords(t *testing.T) {
	cfg := testConfig(t)
	source := &staticSource{hosts: []registry.Host{
		{Name: "web01", UpdateEnabled: true},
	}}
	collector := &fakeCollector{configs: map[string]map[string]*dump.ServiceConfig{
		"web01": servicesWithTitle("Web load"),
	}}

	u := New(zerolog.Nop(), cfg, source, WithCollector(collector))

	if _, err := u.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, stats.FileName))
	if err != nil {
		t.Fatalf("read stats file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected worker and total records, got %q", lines)
	}
	if !strings.HasPrefix(lines[0], "UD|web01|") {
		t.Fatalf("expected per-worker record first, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "UT|") {
		t.Fatalf("expected total record last, got %q", lines[1])
	}
}

func TestUpdater_FailedHostKeepsPreviousConfig(t *testing.T) {
	cfg := testConfig(t)
	source := &staticSource{hosts: []registry.Host{
		{Name: "web01", UpdateEnabled: true},
		{Name: "db01", UpdateEnabled: true},
	}}

	first := &fakeCollector{configs: map[string]map[string]*dump.ServiceConfig{
		"web01": servicesWithTitle("Web load"),
		"db01":  servicesWithTitle("DB load"),
	}}
	u := New(zerolog.Nop(), cfg, source, WithCollector(first))
	if _, err := u.RunOnce(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	second := &fakeCollector{
		configs: map[string]map[string]*dump.ServiceConfig{
			"web01": servicesWithTitle("Web load v2"),
		},
		errs: map[string]error{"db01": errors.New("connection refused")},
	}
	u = New(zerolog.Nop(), cfg, source, WithCollector(second))
	if _, err := u.RunOnce(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, DatafileName))
	if err != nil {
		t.Fatalf("read datafile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "web01:load.graph_title Web load v2") {
		t.Fatalf("expected updated web01 config, got:\n%s", content)
	}
	if !strings.Contains(content, "db01:load.graph_title DB load") {
		t.Fatalf("expected failed db01 host to keep previous config, got:\n%s", content)
	}
}

func TestUpdater_AllowListFiltersDispatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hosts = []string{"a"}
	source := &staticSource{hosts: []registry.Host{
		{Name: "a", UpdateEnabled: true},
		{Name: "b", UpdateEnabled: false},
		{Name: "c", UpdateEnabled: true},
	}}

	var mu sync.Mutex
	fetched := make([]string, 0)
	collector := collectorFunc(func(ctx context.Context, host registry.Host) (map[string]*dump.ServiceConfig, error) {
		mu.Lock()
		fetched = append(fetched, host.Name)
		mu.Unlock()
		return servicesWithTitle(host.Name), nil
	})

	u := New(zerolog.Nop(), cfg, source, WithCollector(collector))
	if _, err := u.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fetched) != 1 || fetched[0] != "a" {
		t.Fatalf("expected dispatch set {a}, got %v", fetched)
	}
}

type collectorFunc func(ctx context.Context, host registry.Host) (map[string]*dump.ServiceConfig, error)

func (f collectorFunc) Fetch(ctx context.Context, host registry.Host) (map[string]*dump.ServiceConfig, error) {
	return f(ctx, host)
}

func TestUpdater_ConcurrentCyclesSerialize(t *testing.T) {
	cfg := testConfig(t)
	source := &staticSource{}

	u := New(zerolog.Nop(), cfg, source, WithCollector(&fakeCollector{}))

	if err := os.MkdirAll(cfg.RunDir, 0o700); err != nil {
		t.Fatalf("create run dir: %v", err)
	}
	manager := lock.NewManager(cfg.RunDir)
	held, err := manager.Acquire(RunLockName)
	if err != nil {
		t.Fatalf("acquire run lock: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := u.RunOnce(context.Background())
		done <- err
	}()

	select {
	case <-done:
		t.Fatalf("cycle should block while run lock is held")
	case <-time.After(100 * time.Millisecond):
	}

	if err := held.Release(); err != nil {
		t.Fatalf("release run lock: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cycle after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cycle did not proceed after run lock release")
	}
}

func TestUpdater_ParallelAndSequentialProduceSameDatafile(t *testing.T) {
	hosts := []registry.Host{
		{Name: "a", UpdateEnabled: true},
		{Name: "b", UpdateEnabled: true},
		{Name: "c", UpdateEnabled: true},
	}
	configs := map[string]map[string]*dump.ServiceConfig{
		"a": servicesWithTitle("A"),
		"b": servicesWithTitle("B"),
		"c": servicesWithTitle("C"),
	}

	read := func(parallel bool) string {
		cfg := testConfig(t)
		cfg.Parallel = parallel
		u := New(zerolog.Nop(), cfg, &staticSource{hosts: hosts}, WithCollector(&fakeCollector{configs: configs}))
		if _, err := u.RunOnce(context.Background()); err != nil {
			t.Fatalf("run once (parallel=%v): %v", parallel, err)
		}
		data, err := os.ReadFile(filepath.Join(cfg.DataDir, DatafileName))
		if err != nil {
			t.Fatalf("read datafile: %v", err)
		}
		return string(data)
	}

	sequential := read(false)
	parallel := read(true)
	if sequential != parallel {
		t.Fatalf("expected identical datafiles:\nsequential:\n%s\nparallel:\n%s", sequential, parallel)
	}
}

type recordingReconciler struct {
	previous dump.HostConfigSet
	current  dump.HostConfigSet
	calls    int
}

func (r *recordingReconciler) Reconcile(ctx context.Context, previous, current dump.HostConfigSet) error {
	r.previous = previous
	r.current = current
	r.calls++
	return nil
}

func TestUpdater_ReconcilerSeesOldAndNewSets(t *testing.T) {
	cfg := testConfig(t)
	source := &staticSource{hosts: []registry.Host{{Name: "web01", UpdateEnabled: true}}}
	collector := &fakeCollector{configs: map[string]map[string]*dump.ServiceConfig{
		"web01": servicesWithTitle("Web load"),
	}}
	reconciler := &recordingReconciler{}

	u := New(zerolog.Nop(), cfg, source, WithCollector(collector), WithReconciler(reconciler))
	if _, err := u.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if reconciler.calls != 1 {
		t.Fatalf("expected one reconcile call, got %d", reconciler.calls)
	}
	if len(reconciler.previous) != 0 {
		t.Fatalf("expected empty previous set on first cycle, got %+v", reconciler.previous)
	}
	if len(reconciler.current) != 1 {
		t.Fatalf("expected current set with one host, got %+v", reconciler.current)
	}
}

func TestUpdater_ReconcilerFailureDoesNotAbortCycle(t *testing.T) {
	cfg := testConfig(t)
	source := &staticSource{hosts: []registry.Host{{Name: "web01", UpdateEnabled: true}}}
	collector := &fakeCollector{configs: map[string]map[string]*dump.ServiceConfig{
		"web01": servicesWithTitle("Web load"),
	}}

	u := New(zerolog.Nop(), cfg, source,
		WithCollector(collector),
		WithReconciler(failingReconciler{}),
	)
	if _, err := u.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected cycle to tolerate reconcile failure, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.DataDir, DatafileName)); err != nil {
		t.Fatalf("expected datafile to be persisted: %v", err)
	}
}

type failingReconciler struct{}

func (failingReconciler) Reconcile(ctx context.Context, previous, current dump.HostConfigSet) error {
	return fmt.Errorf("notifier unavailable")
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time, 1)}
}

func (f *fakeTicker) C() <-chan time.Time {
	return f.ch
}

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func waitForCalls(t *testing.T, source *staticSource, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if source.calls.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d cycles, got %d", want, source.calls.Load())
}

func TestUpdater_RunExecutesImmediateAndTickedCycles(t *testing.T) {
	cfg := testConfig(t)
	source := &staticSource{}
	ticker := newFakeTicker()

	u := New(zerolog.Nop(), cfg, source,
		WithCollector(&fakeCollector{}),
		WithTickerFactory(func(time.Duration) Ticker { return ticker }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	waitForCalls(t, source, 1)

	ticker.ch <- time.Now()
	waitForCalls(t, source, 2)

	ticker.ch <- time.Now()
	waitForCalls(t, source, 3)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}

	if !ticker.Stopped() {
		t.Fatalf("expected ticker to be stopped")
	}
}

func TestUpdater_RunRejectsNonPositivePollInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.PollInterval = 0

	u := New(zerolog.Nop(), cfg, &staticSource{}, WithCollector(&fakeCollector{}))

	if err := u.Run(context.Background()); err == nil {
		t.Fatalf("expected error for zero poll interval")
	}
}

func TestUpdater_RunContinuesAfterFailedCycle(t *testing.T) {
	cfg := testConfig(t)
	source := &failingSource{}
	ticker := newFakeTicker()

	u := New(zerolog.Nop(), cfg, source,
		WithCollector(&fakeCollector{}),
		WithTickerFactory(func(time.Duration) Ticker { return ticker }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && source.calls.Load() < 1 {
		time.Sleep(5 * time.Millisecond)
	}

	ticker.ch <- time.Now()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && source.calls.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if source.calls.Load() < 2 {
		t.Fatalf("expected loop to keep running after a failed cycle, got %d calls", source.calls.Load())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

type failingSource struct {
	calls atomic.Int32
}

func (s *failingSource) Hosts(ctx context.Context) ([]registry.Host, error) {
	s.calls.Add(1)
	return nil, errors.New("registry unavailable")
}

func TestUpdater_FailedCyclesLeaveNoStatsTempFiles(t *testing.T) {
	cfg := testConfig(t)

	u := New(zerolog.Nop(), cfg, &failingSource{}, WithCollector(&fakeCollector{}))

	for i := 0; i < 3; i++ {
		if _, err := u.RunOnce(context.Background()); err == nil {
			t.Fatalf("expected cycle %d to fail", i)
		}
	}

	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		t.Fatalf("read data dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".stats-") {
			t.Fatalf("orphan stats temp file after failed cycles: %s", entry.Name())
		}
	}
}
