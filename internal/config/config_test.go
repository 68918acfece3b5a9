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
	t.Setenv("HOME", t.TempDir())

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8001, c.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, c.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, c.CacheTTL())
	assert.Equal(t, 2*time.Minute, c.RefreshBefore())
	assert.Equal(t, time.Hour, c.MaxStale())
	assert.Equal(t, 30*time.Minute, c.NameCacheTTL())
	assert.Equal(t, 0.75, c.GroupThreshold)
	assert.Equal(t, 0.65, c.SuggestThreshold)
	assert.Equal(t, 100, c.SampleRows)
	assert.Equal(t, 500, c.MaxFilterValues)
	assert.Equal(t, "file", c.OverlayStore)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".feedback", "overlays.yaml"), c.OverlayPath)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FEEDBACK_PORT", "9090")
	t.Setenv("FEEDBACK_GROUP_THRESHOLD", "0.8")
	t.Setenv("FEEDBACK_OVERLAY_STORE", "sqlite")
	t.Setenv("FEEDBACK_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, 0.8, c.GroupThreshold)
	assert.Equal(t, "sqlite", c.OverlayStore)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.AllowedOrigins)
}

func TestSaveAndLoadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "feedback.yaml")

	c, err := Load("")
	require.NoError(t, err)
	c.Port = 7000
	c.TopGroups = 3
	c.OverlayPath = "~/data/overlays.yaml"
	require.NoError(t, Save(c, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, loaded.Port)
	assert.Equal(t, 3, loaded.TopGroups)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), "data", "overlays.yaml"), loaded.OverlayPath)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedHomeConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".feedback")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: [8001\n"), 0o644))

	_, err := Load("")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: 8002\n"), 0o644))
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8002, c.Port)
}

func TestSaveDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := Path("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".feedback", "config.yaml"), path)

	c, err := Load("")
	require.NoError(t, err)
	c.TrendBuckets = 4
	require.NoError(t, Save(c, ""))

	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.TrendBuckets)
}
