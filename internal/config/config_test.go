package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Search.MaxResults, cfg.Search.MaxResults)
	assert.Equal(t, "info", cfg.Daemon.LogLevel)
}

func TestLoadFromFile_ParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
daemon:
  idle_timeout_mins: 5
  log_level: debug
search:
  max_results: 20
  debounce_ms: 150
commands:
  - alias: lock
    name: Lock screen
    exec: loginctl lock-session
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Daemon.IdleTimeoutMins)
	assert.Equal(t, "debug", cfg.Daemon.LogLevel)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, 150, cfg.Search.DebounceMs)
	require.Len(t, cfg.Commands, 1)
	assert.Equal(t, "lock", cfg.Commands[0].Alias)
}

func TestLoadFromFile_InvalidLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  log_level: loud\n"), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate_ClampsMaxResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.MaxResults = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Search.MaxResults)

	cfg.Search.MaxResults = 9999
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.Search.MaxResults)
}

func TestValidate_RejectsCustomCommandWithoutExec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Commands = []CustomCommand{{Alias: "lock", Name: "Lock"}}
	assert.Error(t, cfg.Validate())
}

func TestGetSet_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Set("search.max_results", "30"))
	got, err := cfg.Get("search.max_results")
	require.NoError(t, err)
	assert.Equal(t, "30", got)

	require.NoError(t, cfg.Set("daemon.log_level", "warn"))
	assert.Equal(t, "warn", cfg.Daemon.LogLevel)

	assert.Error(t, cfg.Set("daemon.log_level", "loud"))
	assert.Error(t, cfg.Set("nosection.key", "x"))
	_, err = cfg.Get("daemon")
	assert.Error(t, err, "keys must be section.key")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PALETTE_LOG_LEVEL", "error")
	t.Setenv("PALETTE_SOCKET_PATH", "/tmp/custom.sock")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "error", cfg.Daemon.LogLevel)
	assert.Equal(t, "/tmp/custom.sock", cfg.Daemon.SocketPath)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Search.DebounceMs = 250
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 250, loaded.Search.DebounceMs)
}

func TestPaths_FileLayout(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	t.Setenv("XDG_RUNTIME_DIR", "/tmp/xdg-run")

	p := DefaultPaths()
	assert.Equal(t, "/tmp/xdg-config/palette/config.yaml", p.ConfigFile())
	assert.Equal(t, "/tmp/xdg-data/palette/state.db", p.DatabaseFile())
	assert.Equal(t, "/tmp/xdg-run/palette/palette.sock", p.SocketFile())
	assert.Equal(t, "/tmp/xdg-run/palette/palette.pid", p.PIDFile())
}
