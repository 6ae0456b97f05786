package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "conf", "controllers"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "conf", "controllers", "a.yml"), []byte("a: 1\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyDir(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "conf", "controllers", "a.yml"))
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	info, err := os.Stat(filepath.Join(dst, "conf", "controllers", "a.yml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.FileExists(t, filepath.Join(dst, "top.txt"))
}

func TestCopyDirRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0644))
	assert.Error(t, CopyDir(f, filepath.Join(t.TempDir(), "x")))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "keys.yml")

	require.NoError(t, WriteFileAtomic(path, []byte("v1"), 0600))
	require.NoError(t, WriteFileAtomic(path, []byte("v2"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.True(t, Exists(path))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
}
