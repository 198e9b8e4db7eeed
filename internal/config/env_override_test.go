package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	scratch := t.TempDir()

	t.Run("binary scratch and level", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PEPSIRF_BINARY", "/usr/local/bin/pepsirf")
		t.Setenv("PEPKIT_SCRATCH_DIR", scratch)
		t.Setenv("PEPKIT_LOG_LEVEL", "debug")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "/usr/local/bin/pepsirf", cfg.Engine.Binary)
		assert.Equal(t, scratch, cfg.Engine.ScratchDir)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("parallelism", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PEPKIT_PARALLELISM", "3")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Pipeline.Parallelism)
	})

	t.Run("invalid parallelism ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PEPKIT_PARALLELISM", "many")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Pipeline.Parallelism)
	})

	t.Run("env wins over file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "pepkit.yaml")
		cfg := DefaultConfig()
		cfg.Engine.Binary = "from-file"
		require.NoError(t, cfg.Save(path))

		t.Setenv("PEPSIRF_BINARY", "from-env")
		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", loaded.Engine.Binary)
	})
}
