package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolderReloadSwapsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600))

	initial, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(initial, path)

	require.NoError(t, os.WriteFile(path, []byte("listen: \":7070\"\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, ":7070", h.Current().Listen)
}

func TestHolderReloadKeepsOldOnInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600))

	initial, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(initial, path)

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: memcached\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))

	assert.Equal(t, ":9090", h.Current().Listen)
}

func TestHolderNotifiesListeners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600))

	initial, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(initial, path)

	ch := make(chan Config, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("listen: \":6060\"\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	select {
	case got := <-ch:
		assert.Equal(t, ":6060", got.Listen)
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}
}

func TestHolderWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600))

	initial, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(initial, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("listen: \":5050\"\n"), 0o600))

	require.Eventually(t, func() bool {
		return h.Current().Listen == ":5050"
	}, 5*time.Second, 50*time.Millisecond, "watcher did not apply the new config")
}

func TestHolderWatcherDisabledWithoutPath(t *testing.T) {
	h := NewHolder(Defaults(), "")
	require.NoError(t, h.StartWatcher(context.Background()))
}
