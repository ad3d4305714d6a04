package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-assist/engine/internal/config"
)

func TestNewBackend(t *testing.T) {
	t.Run("file backend", func(t *testing.T) {
		cfg := &config.Config{StorageBackend: "file", DataDir: t.TempDir()}
		backend, closeBackend, err := newBackend(cfg)
		require.NoError(t, err)
		require.NotNil(t, backend)
		require.NoError(t, closeBackend())
	})

	t.Run("sqlite backend", func(t *testing.T) {
		cfg := &config.Config{
			StorageBackend: "sqlite",
			DatabasePath:   filepath.Join(t.TempDir(), "engine.db"),
		}
		backend, closeBackend, err := newBackend(cfg)
		require.NoError(t, err)
		require.NotNil(t, backend)
		require.NoError(t, closeBackend())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := &config.Config{StorageBackend: "redis"}
		backend, _, err := newBackend(cfg)
		assert.Error(t, err)
		assert.Nil(t, backend)
	})
}
