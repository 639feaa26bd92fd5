package bosync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		return fmt.Errorf("bosync binary is required (BOSYNC_INTEGRATION_BINARY)")
	}

	// go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("BOSYNC_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("bosync binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "BOSYNC_INTEGRATION"
		envBinary     = "BOSYNC_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// fakeBackoffice is an in memory remote API. Modules listed in failing
// answer every call with the configured status code.
type fakeBackoffice struct {
	mu      sync.Mutex
	data    map[string][]map[string]any
	failing map[string]int
	saved   []map[string]any
}

type fakeQuery struct {
	Start   int `json:"start"`
	Limit   int `json:"limit"`
	Filters []struct {
		Name string `json:"name"`
		Val  any    `json:"val"`
	} `json:"filters"`
}

func (f *fakeBackoffice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	module, function, _ := strings.Cut(strings.Trim(r.URL.Path, "/"), "/")
	if code, ok := f.failing[module]; ok {
		http.Error(w, "backoffice failure", code)
		return
	}

	switch function {
	case "save":
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.saved = append(f.saved, payload)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": len(f.saved)})

	case "list":
		var q fakeQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items := f.data[module]
		for _, flt := range q.Filters {
			var filtered []map[string]any
			for _, it := range items {
				if fmt.Sprint(it[flt.Name]) == fmt.Sprint(flt.Val) {
					filtered = append(filtered, it)
				}
			}
			items = filtered
		}

		page := []map[string]any{}
		if q.Start < len(items) {
			page = items[q.Start:min(q.Start+q.Limit, len(items))]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(items), "data": page})

	default:
		http.NotFound(w, r)
	}
}

func items(n int) []map[string]any {
	its := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		its = append(its, map[string]any{"id": i, "name": fmt.Sprintf("item-%d", i)})
	}
	return its
}

// env is a bosync environment isolated in a temporary data dir.
type env struct {
	config  Config
	dataDir string
	cfgPath string
}

func newEnv(t *testing.T, config Config, remote *fakeBackoffice) env {
	t.Helper()

	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bosync.yaml")
	cfg := fmt.Sprintf(`remote:
  base_url: %s
  timeout: 5s
  rate_limit: 100
import:
  page_size: 7
runner:
  isolated: true
  timeout: 1m
`, srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	return env{config: config, dataDir: filepath.Join(dir, "data"), cfgPath: cfgPath}
}

func (e env) run(ctx context.Context, t *testing.T, args ...string) (stdout, stderr []byte, err error) {
	t.Helper()
	all := append([]string{"--data-dir", e.dataDir, "--config", e.cfgPath}, args...)
	return testutils.RunBosyncArgs(ctx, nil, e.config.Binary, all, true)
}

func (e env) mustRun(ctx context.Context, t *testing.T, args ...string) []byte {
	t.Helper()
	stdout, stderr, err := e.run(ctx, t, args...)
	require.NoError(t, err, "stderr: %s", stderr)
	return stdout
}
