package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-esocial/pkg/esocial"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, esocial.EnvironmentRestricted, cfg.Environment())
	assert.Equal(t, 60*time.Second, cfg.ESocial.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.ESocial.DuplicateWindow)
	assert.Equal(t, int64(4<<20), cfg.ESocial.MaxResponseBytes)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_MONGODB_URI", "mongodb://db.internal:27017")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
esocial:
  environment: production
  timeout: 30s
signing:
  checkRevocation: true
storage:
  type: mongodb
  mongodb:
    uri: ${TEST_MONGODB_URI}
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, esocial.EnvironmentProduction, cfg.Environment())
	assert.Equal(t, 30*time.Second, cfg.ESocial.Timeout)
	assert.True(t, cfg.Signing.CheckRevocation)
	assert.Equal(t, "mongodb://db.internal:27017", cfg.Storage.MongoDB.URI)
	assert.Equal(t, "esocial", cfg.Storage.MongoDB.Database)
	assert.Equal(t, "events", cfg.Storage.MongoDB.Collection)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "server: [unclosed"},
		{"port", "server:\n  port: 70000"},
		{"tls without files", "server:\n  tls:\n    enabled: true"},
		{"environment", "esocial:\n  environment: staging"},
		{"negative response cap", "esocial:\n  maxResponseBytes: -1"},
		{"storage type", "storage:\n  type: redis"},
		{"mongodb without uri", "storage:\n  type: mongodb"},
		{"log level", "log:\n  level: loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
