package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-vpn-auth-service/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "127.0.0.1", c.GetMgmtHost())
	require.Equal(t, 7505, c.GetMgmtPort())
	require.Equal(t, time.Second, c.GetInitialBackoff())
	require.Equal(t, 30*time.Second, c.GetMaxBackoff())
	require.Equal(t, 10*time.Second, c.GetValidationTimeout())
	require.Equal(t, 4, c.GetValidationWorkers())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MGMT_HOST", "10.8.0.1")
	t.Setenv("MGMT_PORT", "7506")
	t.Setenv("MGMT_VALIDATION_TIMEOUT", "3s")

	c := config.New()
	require.Equal(t, "10.8.0.1", c.GetMgmtHost())
	require.Equal(t, 7506, c.GetMgmtPort())
	require.Equal(t, 3*time.Second, c.GetValidationTimeout())
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, 7505, c.GetMgmtPort())
}

func TestLoadFileOverridesManagementSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpnauthd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[management]
host = "192.0.2.1"
port = 7600
validation_timeout = "2s"
drain_grace = "8s"
`), 0o644))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "192.0.2.1", c.GetMgmtHost())
	require.Equal(t, 7600, c.GetMgmtPort())
	require.Equal(t, 2*time.Second, c.GetValidationTimeout())
	require.Equal(t, 8*time.Second, c.GetDrainGrace())

	// Unset values fall through to the environment-backed defaults.
	require.Equal(t, 30*time.Second, c.GetMaxBackoff())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpnauthd.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
