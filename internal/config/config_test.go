package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCHEMACTL_DB_DSN", "user:pass@tcp(localhost:3306)/church?parseTime=true")
	t.Setenv("SCHEMACTL_DB_ENGINE", "")
	t.Setenv("SCHEMACTL_BACKUP_DIR", "")
	t.Setenv("SCHEMACTL_LOG_LEVEL", "")
	t.Setenv("SCHEMACTL_LOG_FORMAT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Engine)
	assert.Equal(t, "./backups", cfg.BackupRoot)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadNormalizesEngine(t *testing.T) {
	t.Setenv("SCHEMACTL_DB_DSN", "postgres://u:p@localhost/church")
	t.Setenv("SCHEMACTL_DB_ENGINE", "  Postgres ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Engine)
}

func TestValidate(t *testing.T) {
	err := Config{Engine: "mysql"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEMACTL_DB_DSN")

	err = Config{Engine: "oracle", DSN: "x"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEMACTL_DB_ENGINE")

	assert.NoError(t, Config{Engine: "postgres", DSN: "x"}.Validate())
}
