package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "APP_ENV", "APP_VERSION", "PURGE_AFTER_DAYS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "appforge", cfg.Database.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 30, cfg.App.PurgeAfterDays)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("PURGE_AFTER_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 7, cfg.App.PurgeAfterDays)
}

func TestLoadBadIntFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", db.DSN())
}
