package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRoot(t *testing.T) {
	shared := t.TempDir()
	configured := t.TempDir()

	t.Run("configured wins", func(t *testing.T) {
		t.Setenv(SharedDirEnv, shared)
		root, err := ResolveRoot(configured)
		require.NoError(t, err)
		assert.Equal(t, configured, root.Path)
		assert.True(t, root.Shared)
	})

	t.Run("shared dir env", func(t *testing.T) {
		t.Setenv(SharedDirEnv, shared)
		root, err := ResolveRoot("  ")
		require.NoError(t, err)
		assert.Equal(t, shared, root.Path)
		assert.True(t, root.Shared)
	})

	t.Run("process-local fallback", func(t *testing.T) {
		t.Setenv(SharedDirEnv, "")
		t.Setenv("XDG_CACHE_HOME", filepath.Join(shared, "cache"))
		root, err := ResolveRoot("")
		require.NoError(t, err)
		assert.False(t, root.Shared)
		assert.Equal(t, appName, filepath.Base(root.Path))
	})
}
