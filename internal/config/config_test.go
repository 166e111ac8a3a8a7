package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backoffice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  dsn: postgres://local/backoffice
auth:
  jwt_secret: `+testSecret+`
loans:
  reminder_days: 3
`)
	t.Setenv("LOAN_GRACE_DAYS", "45")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Loans.ReminderDays)
	assert.Equal(t, 45, cfg.Loans.GraceDays)
	assert.Equal(t, "*/5 * * * *", cfg.Schedule.Sync, "defaults survive partial files")
}

func TestLoadMissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/backoffice")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/backoffice", cfg.Database.DSN)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://local"
	cfg.Auth.JWTSecret = testSecret
	require.NoError(t, cfg.Validate())

	cfg.Sync.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "cloud_dsn")

	cfg.Database.CloudDSN = "postgres://cloud"
	cfg.Schedule.Sync = "every now and then"
	assert.ErrorContains(t, cfg.Validate(), "schedule.sync")

	cfg.Schedule.Sync = "@every 10m"
	require.NoError(t, cfg.Validate())

	cfg.Auth.JWTSecret = "short"
	assert.ErrorContains(t, cfg.Validate(), "jwt_secret")
}
