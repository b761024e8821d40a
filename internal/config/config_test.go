package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glowroutine.yaml")
	content := `http:
  addr: ":9090"
database:
  url: postgres://localhost/glow
session:
  tick_interval: 250ms
catalog:
  path: ./catalog.yaml
  watch: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://localhost/glow", cfg.Database.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.TickInterval)
	assert.True(t, cfg.Catalog.Watch)
	// Untouched fields keep their defaults.
	assert.Equal(t, time.Minute, cfg.Watcher.Interval)
	assert.Equal(t, "glowroutine", cfg.NATS.SubjectPrefix)
	assert.True(t, cfg.Session.ShowPending)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unclosed"), 0o644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvHTTPAddr:    ":7000",
		EnvDatabaseURL: "postgres://db/glow",
		EnvNATSURL:     "nats://bus:4222",
		EnvLogLevel:    "verbose",
		EnvProfilePath: "users.yaml",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://db/glow", cfg.Database.URL)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.Equal(t, "verbose", cfg.Log.Level)
	assert.Equal(t, "users.yaml", cfg.ProfilePath)
	assert.Empty(t, cfg.Catalog.Path)
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv(EnvHTTPAddr, ":6060")
	chdir(t, t.TempDir()) // no stray .env

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.HTTP.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.HTTP.Addr = " " }},
		{"zero tick", func(c *Config) { c.Session.TickInterval = 0 }},
		{"zero watcher", func(c *Config) { c.Watcher.Interval = 0 }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"watch without path", func(c *Config) { c.Catalog.Watch = true }},
		{"zero shutdown", func(c *Config) { c.HTTP.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
