package sandbox

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealFileSystem(t *testing.T) {
	rfs := RealFileSystem{}
	dir := t.TempDir()

	t.Run("CreateExclusive", func(t *testing.T) {
		path := filepath.Join(dir, "wrapper_00000001.lua")
		require.NoError(t, rfs.CreateExclusive(path, []byte("return 1"), FilePermission))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "return 1", string(data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, FilePermission, info.Mode().Perm())
	})

	t.Run("CreateExclusiveRefusesExisting", func(t *testing.T) {
		path := filepath.Join(dir, "taken.lua")
		require.NoError(t, os.WriteFile(path, []byte("original"), 0o600))

		err := rfs.CreateExclusive(path, []byte("replacement"), FilePermission)
		require.ErrorIs(t, err, fs.ErrExist)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "original", string(data))
	})

	t.Run("Remove", func(t *testing.T) {
		path := filepath.Join(dir, "gone.lua")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		require.NoError(t, rfs.Remove(path))
		require.ErrorIs(t, rfs.Remove(path), fs.ErrNotExist)
	})
}

func TestRealCommandRunnerNoCommand(t *testing.T) {
	_, _, _, err := RealCommandRunner{}.RunCommand(context.Background(), t.TempDir(), nil)
	require.Error(t, err)
}
