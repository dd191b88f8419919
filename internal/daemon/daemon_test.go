//go:build !windows

package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palette-dev/palette/internal/broker"
	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/palette"
	"github.com/palette-dev/palette/internal/providers"
	"github.com/palette-dev/palette/internal/storage"
	"github.com/palette-dev/palette/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPaths(t *testing.T) *config.Paths {
	t.Helper()
	base := t.TempDir()
	return &config.Paths{
		ConfigDir:  filepath.Join(base, "config"),
		DataDir:    filepath.Join(base, "data"),
		RuntimeDir: filepath.Join(base, "run"),
	}
}

func startTestServer(t *testing.T, cfg *config.Config) (*Server, *config.Paths) {
	t.Helper()

	paths := testPaths(t)
	require.NoError(t, paths.EnsureDirectories())

	store, err := storage.Open(paths.DatabaseFile(), testLogger())
	require.NoError(t, err)

	srv, err := NewServer(&ServerConfig{
		Config: cfg,
		Store:  store,
		Paths:  paths,
		Logger: testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv, paths
}

func TestLockFile_AcquireAndRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "palette.lock")
	lock := NewLockFile(path)
	require.NoError(t, lock.Acquire())

	pid, held, err := ReadHeldPID(path)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, lock.Release())

	_, held, err = ReadHeldPID(path)
	require.NoError(t, err)
	assert.False(t, held)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "lock file removed on release")
}

func TestLockFile_SecondAcquireFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "palette.lock")
	first := NewLockFile(path)
	require.NoError(t, first.Acquire())
	defer first.Release()

	second := NewLockFile(path)
	err := second.Acquire()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))
}

func TestLockFile_StaleLockIsReclaimed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "palette.lock")
	// A PID nobody holds a flock for reads as not held.
	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0o600))

	_, held, err := ReadHeldPID(path)
	require.NoError(t, err)
	assert.False(t, held)

	lock := NewLockFile(path)
	require.NoError(t, lock.Acquire())
	defer lock.Release()
}

func TestServer_ServesCommandCatalogOverSocket(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Commands = []config.CustomCommand{
		{Alias: "lock", Name: "Lock screen", Exec: "loginctl lock-session"},
	}
	srv, _ := startTestServer(t, cfg)

	client, err := transport.DialSocket(srv.SocketPath(), "backend", time.Second)
	require.NoError(t, err)
	ui := broker.New(client, broker.OriginUI, testLogger())
	defer ui.Close()

	out, err := ui.Request(context.Background(), "backend", broker.Body{Kind: broker.KindCommands})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	var catalog []palette.CommandRef
	require.NoError(t, json.Unmarshal(out.Data, &catalog))

	byProvider := map[string]bool{}
	for _, ref := range catalog {
		byProvider[ref.ProviderID] = true
	}
	for _, want := range []string{"tabs", "history", "bookmarks", "builtin"} {
		assert.True(t, byProvider[want], "catalog includes %s", want)
	}
}

func TestServer_TabSearchRoundTrip(t *testing.T) {
	srv, _ := startTestServer(t, config.DefaultConfig())
	srv.Tabs().Track(providers.Tab{ID: "1", Title: "GitHub - pull requests", URL: "https://github.com/pulls"})

	client, err := transport.DialSocket(srv.SocketPath(), "backend", time.Second)
	require.NoError(t, err)
	ui := broker.New(client, broker.OriginUI, testLogger())
	defer ui.Close()

	payload, err := json.Marshal(palette.Query{Term: "github"})
	require.NoError(t, err)
	out, err := ui.Request(context.Background(), "backend", broker.Body{
		ProviderID: "tabs",
		CommandID:  "search",
		Kind:       broker.KindSearch,
		Payload:    payload,
	})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	var results []palette.Result
	require.NoError(t, json.Unmarshal(out.Data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "tab/1", results[0].ID)
}

func TestServer_SecondInstanceRefusesToStart(t *testing.T) {
	srv, paths := startTestServer(t, config.DefaultConfig())
	defer srv.Stop()

	store, err := storage.Open(filepath.Join(t.TempDir(), "other.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	second, err := NewServer(&ServerConfig{
		Config: config.DefaultConfig(),
		Store:  store,
		Paths:  paths,
		Logger: testLogger(),
	})
	require.NoError(t, err)

	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServer_StopRemovesRuntimeFiles(t *testing.T) {
	srv, paths := startTestServer(t, config.DefaultConfig())

	pidData, err := os.ReadFile(paths.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(pidData)))

	srv.Stop()
	srv.Wait()

	for _, f := range []string{paths.PIDFile(), paths.LockFile(), srv.SocketPath()} {
		_, statErr := os.Stat(f)
		assert.True(t, os.IsNotExist(statErr), "%s removed on stop", f)
	}
}

func TestServer_ReloadSwapsCustomCommands(t *testing.T) {
	srv, _ := startTestServer(t, config.DefaultConfig())

	cfg := config.DefaultConfig()
	cfg.Commands = []config.CustomCommand{
		{Alias: "lock", Name: "Lock screen", Exec: "loginctl lock-session"},
	}
	srv.Reload(context.Background(), cfg)

	client, err := transport.DialSocket(srv.SocketPath(), "backend", time.Second)
	require.NoError(t, err)
	ui := broker.New(client, broker.OriginUI, testLogger())
	defer ui.Close()

	payload, err := json.Marshal(palette.Query{Term: "lock"})
	require.NoError(t, err)
	out, err := ui.Request(context.Background(), "backend", broker.Body{
		ProviderID: "builtin",
		CommandID:  "search",
		Kind:       broker.KindSearch,
		Payload:    payload,
	})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	var results []palette.Result
	require.NoError(t, json.Unmarshal(out.Data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Lock screen", results[0].Title)
}

func TestServer_ReloadIsSafeUnderConcurrentReads(t *testing.T) {
	srv, _ := startTestServer(t, config.DefaultConfig())

	// Reload can fire from the signal watcher and the config watcher at the
	// same time, while the idle watcher and clients keep reading. Run under
	// the race detector.
	next := config.DefaultConfig()
	next.Daemon.IdleTimeoutMins = 7
	next.Commands = []config.CustomCommand{
		{Alias: "lock", Name: "Lock screen", Exec: "loginctl lock-session"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				srv.Reload(context.Background(), next)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = srv.SocketPath()
			}
		}()
	}
	wg.Wait()

	assert.NotEmpty(t, srv.SocketPath())
}
