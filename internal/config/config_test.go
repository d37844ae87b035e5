package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DURGA_CONFIG_FILE", "")
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "durga", cfg.Auth.Issuer)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Database.DSN)
	assert.True(t, cfg.Migrations.Seeds)
	assert.Error(t, cfg.RequireAuth())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DURGA_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("DURGA_DATABASE_DSN", "postgres://localhost/durga")
	t.Setenv("DURGA_AUTH_TOKEN_TTL", "15m")
	t.Setenv("DURGA_AUTH_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DURGA_RATELIMIT_RPS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://localhost/durga", cfg.Database.DSN)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Zero(t, cfg.RateLimit.RPS)
	assert.NoError(t, cfg.RequireAuth())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "durga.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\nauth:\n  issuer: corp\n"), 0o600))
	t.Setenv("DURGA_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "corp", cfg.Auth.Issuer)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad level":    {"DURGA_LOG_LEVEL": "loud"},
		"zero ttl":     {"DURGA_AUTH_TOKEN_TTL": "0s"},
		"negative rps": {"DURGA_RATELIMIT_RPS": "-1"},
		"zero burst":   {"DURGA_RATELIMIT_BURST": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
