package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
venues:
  - id: alpha
    equity: 100000
    trade_enabled: true
  - id: beta
    equity: 50000
    trade_enabled: false
capital:
  max_single_pct: 0.05
  max_total_pct: 0.25
switches:
  emergency:
    global_kill_switch: false
  venues:
    beta: false
http:
  listen_addr: ":9090"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_ParsesVenuesAndCapital(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	root, err := Load(path)
	require.NoError(t, err)
	require.Len(t, root.Venues, 2)
	assert.Equal(t, "alpha", root.Venues[0].ID)
	assert.Equal(t, 0.05, root.Capital.MaxSinglePct)
	assert.Equal(t, ":9090", root.HTTP.ListenAddr)
}

func TestLoad_AppliesDefaultsWhenSectionOmitted(t *testing.T) {
	path := writeTempConfig(t, "venues: []\n")

	root, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.10, root.Capital.MaxSinglePct)
	assert.Equal(t, 10000, root.Scheduler.MaxPending)
	assert.Equal(t, 5, root.Postgres.TimeoutSeconds)
	assert.NotZero(t, root.Execution.MakerTimeout)
	assert.NotZero(t, root.Supervisor.MaxLatencyMs)
	assert.EqualValues(t, "balanced", root.Risk.InitialMode)
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestStore_ReloadSwapsAtomically(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	root, err := Load(path)
	require.NoError(t, err)
	store := NewStore(root)

	assert.False(t, store.IsGlobalKillSwitchOn())
	assert.False(t, store.IsVenueEnabled("beta"))
	assert.True(t, store.IsVenueEnabled("unknown-venue"))

	require.NoError(t, os.WriteFile(path, []byte(`
switches:
  emergency:
    global_kill_switch: true
`), 0644))
	require.NoError(t, store.Reload(path))

	assert.True(t, store.IsGlobalKillSwitchOn())
}

func TestStore_ReloadLeavesOldConfigOnParseError(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	root, err := Load(path)
	require.NoError(t, err)
	store := NewStore(root)

	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: [\n"), 0644))
	err = store.Reload(path)
	assert.Error(t, err)
	assert.Equal(t, ":9090", store.Current().HTTP.ListenAddr)
}
