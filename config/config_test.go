package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
model: claude-opus
output_dir: /tmp/builds
hands_off: true
ledger_path: /tmp/ledger.db
event_buffer: 128
planning_timeout: 90s
metrics_interval: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus", cfg.Model)
	assert.Equal(t, "/tmp/builds", cfg.OutputDir)
	assert.True(t, cfg.HandsOff)
	assert.Equal(t, "/tmp/ledger.db", cfg.LedgerPath)
	assert.Equal(t, 128, cfg.EventBuffer)
	assert.Equal(t, 90*time.Second, cfg.PlanningTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.MetricsInterval)
	assert.Equal(t, "claude", cfg.CLIPath)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "model: from-file\nhands_off: false\n")
	t.Setenv("CONDUCTOR_MODEL", "from-env")
	t.Setenv("CONDUCTOR_HANDS_OFF", "true")
	t.Setenv("CONDUCTOR_PLANNING_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model)
	assert.True(t, cfg.HandsOff)
	assert.Equal(t, 45*time.Second, cfg.PlanningTimeout)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := writeConfig(t, "model: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	path := writeConfig(t, "event_buffer: -1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_buffer")
}
