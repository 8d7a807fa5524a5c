package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoader_LoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigYAML), 0644))

	cfg, err := NewConfigLoader(path).LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/backup", cfg.General.Dir.Local)
	assert.Len(t, cfg.App, 3)
}

func TestConfigLoader_MissingFile(t *testing.T) {
	_, err := NewConfigLoader(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig()
	require.Error(t, err)

	var backupErr *BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.Equal(t, BackupErrorTypeConfiguration, backupErr.Type)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestConfigLoader_WithoutFileUsesDefaults(t *testing.T) {
	cfg, err := NewConfigLoader("").LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultClassPolicies()[EntityClassApp], cfg.ExpiryApp)
}

func TestConfigLoader_SaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "backup.yaml")
	loader := NewConfigLoader(path)

	cfg := newTestConfig()
	cfg.Image.Cleanup = true
	require.NoError(t, loader.SaveConfig(cfg))

	loaded, err := loader.LoadConfig()
	require.NoError(t, err)
	assert.True(t, loaded.Image.Cleanup)
	assert.Equal(t, cfg.ExpiryApp, loaded.ExpiryApp)
	assert.Equal(t, cfg.ExpiryDB, loaded.ExpiryDB)
	require.Len(t, loaded.App, 1)
	assert.Equal(t, "dsmr", loaded.App[0].Name)
	assert.Equal(t, cfg.App[0].Policy, loaded.App[0].Policy)
}

func TestConfigLoader_SaveConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.yaml")

	cfg := NewDefaultSystemConfig()
	cfg.General.Retry = -3

	err := NewConfigLoader(path).SaveConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot save invalid configuration")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerateDefaultConfigYAML(t *testing.T) {
	data, err := GenerateDefaultConfigYAML()
	require.NoError(t, err)

	cfg, err := LoadConfigFromBytes(data)
	require.NoError(t, err)

	assert.True(t, cfg.General.Expiry)
	assert.Equal(t, DefaultLocalDir, cfg.General.Dir.Local)
	require.Len(t, cfg.App, 1)
	assert.Equal(t, "dsmr", cfg.App[0].Name)
	assert.Equal(t, DefaultClassPolicies()[EntityClassDB], cfg.ExpiryDB)
	assert.Equal(t, DefaultCronSpec, cfg.Schedule.Cron)
	assert.Equal(t, DefaultRunTimeout, cfg.Schedule.RunTimeout)
	assert.False(t, cfg.Metrics.Enabled)
}
