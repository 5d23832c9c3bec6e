package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.BindPort)
	assert.Equal(t, 72, cfg.DefaultActivityWindowHrs)
	assert.Equal(t, 20, cfg.Database.PoolSize)
	assert.Equal(t, 10, cfg.Alignment.RateLimitMax)
	assert.Equal(t, 1, cfg.Alignment.MaxRetries)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INTELFLOW_BIND_PORT", "9090")
	t.Setenv("INTELFLOW_DATABASE_HOST", "db.internal")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.BindPort)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestDatabase_DSN(t *testing.T) {
	d := Database{Host: "localhost", Port: 5432, Name: "intelflow", User: "intelflow", Password: "secret"}
	assert.Equal(t, "host=localhost port=5432 dbname=intelflow user=intelflow password=secret sslmode=disable", d.DSN())
}
