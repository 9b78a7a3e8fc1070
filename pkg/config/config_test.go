package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Platform, cfg.Platform)
	assert.Equal(t, "v1", cfg.Cache.Version)
	assert.Equal(t, 3, cfg.Download.Concurrency)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("NOVELS_TEST_ORIGIN", "https://read.example.com")
	path := writeConfig(t, `
platform:
  origin: ${NOVELS_TEST_ORIGIN}
cache:
  version: v7
  manifest: ["/", "/app.js"]
download:
  interval: 250ms
sync:
  probe_interval: 1m
logging:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://read.example.com", cfg.Platform.Origin)
	assert.Equal(t, "/api/", cfg.Platform.APIPrefix, "unset keys keep their defaults")
	assert.Equal(t, "v7", cfg.Cache.Version)
	assert.Equal(t, []string{"/", "/app.js"}, cfg.Cache.Manifest)
	assert.Equal(t, 250*time.Millisecond, cfg.Download.Interval)
	assert.Equal(t, time.Minute, cfg.Sync.ProbeInterval)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeConfig(t, "platform:\n  origin: https://file.example.com\n")
	t.Setenv("NOVELS_PLATFORM_ORIGIN", "https://env.example.com")
	t.Setenv("NOVELS_CACHE_VERSION", "v9")
	t.Setenv("NOVELS_DOWNLOAD_INTERVAL", "2s")
	t.Setenv("NOVELS_CACHE_CDN_HOSTS", "a.example.com,b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Platform.Origin)
	assert.Equal(t, "v9", cfg.Cache.Version)
	assert.Equal(t, 2*time.Second, cfg.Download.Interval)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, cfg.Cache.CDNHosts)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "platform: [unterminated"},
		{"bad duration", "download:\n  interval: soon\n"},
		{"relative origin", "platform:\n  origin: /just/a/path\n"},
		{"zero concurrency", "download:\n  concurrency: 0\n"},
		{"zero probe interval", "sync:\n  probe_interval: 0s\n"},
		{"bad log format", "logging:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_Origin(t *testing.T) {
	cfg := Default()
	cfg.Platform.Origin = "https://novels.example.com/"
	assert.Equal(t, "https://novels.example.com", cfg.Origin())
}
