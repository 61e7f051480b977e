package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PREDATOR_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	for _, k := range []string{"PREDATOR_TRANSPORT", "PREDATOR_SERVER", "PREDATOR_SOCKET", "PREDATOR_TIMEOUT", "PREDATOR_LOG_LEVEL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load()
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTripAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Setenv("PREDATOR_CONFIG", path)

	cfg := Default()
	require.NoError(t, cfg.Set("transport", "http"))
	require.NoError(t, cfg.Set("timeout", "5s"))
	require.NoError(t, cfg.Set("log_level", "debug"))
	require.NoError(t, SaveFile(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	fromFile, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, fromFile.Transport)
	assert.Equal(t, 5*time.Second, fromFile.Timeout)
	assert.Equal(t, DefaultSocket, fromFile.Socket)

	t.Setenv("PREDATOR_SOCKET", "/run/predator/other.sock")
	t.Setenv("PREDATOR_TIMEOUT", "90s")
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/run/predator/other.sock", loaded.Socket)
	assert.Equal(t, 90*time.Second, loaded.Timeout)
	assert.Equal(t, "debug", loaded.LogLevel)
}

func TestSetRejectsBadValues(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Set("transport", "carrier-pigeon"))
	assert.Error(t, cfg.Set("timeout", "soon"))
	assert.Error(t, cfg.Set("colour", "red"))
}

func TestLoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: [uds"), 0o600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}
