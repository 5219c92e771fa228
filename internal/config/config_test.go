package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "casedesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":9090"
  allowedOrigins: ["https://escritorio.example"]
backend: postgres
database:
  dsn: postgres://casedesk@localhost/casedesk
auth:
  secret: file-secret
  sessionTTL: 2h
remote:
  timeout: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://escritorio.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "casedesk", cfg.Auth.Issuer)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "auth:\n  secret: file-secret\n")
	t.Setenv("CASEDESK_AUTH_SECRET", "env-secret")
	t.Setenv("CASEDESK_REDIS_ADDR", "localhost:6379")
	t.Setenv("CASEDESK_REMOTE_TIMEOUT", "250ms")
	t.Setenv("CASEDESK_HTTP_ALLOWED_ORIGINS", "http://a, http://b,")
	t.Setenv("CASEDESK_BLOB_USE_SSL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Remote.Timeout)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.HTTP.AllowedOrigins)
	assert.True(t, cfg.Blob.UseSSL)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Setenv("CASEDESK_AUTH_SECRET", "s")
	t.Setenv("CASEDESK_REMOTE_TIMEOUT", "soon")
	_, err := Load("")
	require.ErrorContains(t, err, "CASEDESK_REMOTE_TIMEOUT")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.ErrorContains(t, cfg.Validate(), "auth.secret")

	cfg.Auth.Secret = "s"
	require.NoError(t, cfg.Validate())

	cfg.Backend = BackendREST
	require.ErrorContains(t, cfg.Validate(), "rest.url")

	cfg.Backend = "sqlite"
	require.ErrorContains(t, cfg.Validate(), "unknown backend")
}
