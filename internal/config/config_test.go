package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvAttachments, "")
	return home
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(filepath.Join(home, "nope.yaml"))
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(Default(), cfg))
	assert.Equal(t, filepath.Join(home, ".casefile", "cases.db"), cfg.DBPath)
	assert.Equal(t, 1080, cfg.Viewport.Width)
	assert.Equal(t, 1920, cfg.Viewport.Height)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /data/cases.db
viewport:
  width: 640
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/cases.db", cfg.DBPath)
	assert.Equal(t, 640, cfg.Viewport.Width)
	assert.Equal(t, 1920, cfg.Viewport.Height, "unset axis keeps default")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /from/file.db\n"), 0o644))
	t.Setenv(EnvDBPath, "/from/env.db")
	t.Setenv(EnvAttachments, "/from/env/photos")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.DBPath)
	assert.Equal(t, "/from/env/photos", cfg.AttachmentDir)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "elsewhere.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_decode_pixels: 1000\n"), 0o644))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MaxDecodePixels)
}

func TestLoad_InvalidYAML(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("viewport: [1, 2"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestSaveThenLoad(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "sub", "config.yaml")

	cfg := Default()
	cfg.Viewport = Viewport{Width: 320, Height: 240}
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Viewport{Width: 320, Height: 240}, got.Viewport)
}
