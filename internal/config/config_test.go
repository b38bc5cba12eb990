package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yml := `
store:
  driver: memory
jwt:
  secret: file-secret
verification:
  allow_missing: true
  cache_ttl: 5s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.True(t, cfg.Verification.AllowMissing)
	assert.Equal(t, 5*time.Second, cfg.Verification.CacheTTL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 10, cfg.Outbox.MaxFailures)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("jwt:\n  secret: file-secret\n"), 0o600))

	t.Setenv("LIFEBLOOD_JWT_SECRET", "env-secret")
	t.Setenv("LIFEBLOOD_DB_HOST", "db.internal")
	t.Setenv("LIFEBLOOD_DB_PORT", "6543")
	t.Setenv("LIFEBLOOD_ADMIN_EMAIL", "root@example.com")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "root@example.com", cfg.Admin.Email)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("store:\n  driver: mongo\njwt:\n  secret: x\n"), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", c.DSN())
}
