package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), FileModeSecure))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), FileModeSecure))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteFileAtomic_MissingDirectory(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "file"), []byte("x"), FileModeDefault)
	assert.Error(t, err)
}

func TestPathPredicates(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), FileModeDefault))

	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(file))
	assert.True(t, IsFile(file))
	assert.False(t, IsFile(dir))
	assert.True(t, Exists(file))
	assert.False(t, Exists(filepath.Join(dir, "nope")))
	assert.True(t, IsWritableDir(dir))
	assert.False(t, IsWritableDir(file))
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, SamePath(dir, dir+string(filepath.Separator)))
	assert.True(t, SamePath(filepath.Join(dir, "a", ".."), dir))
	assert.False(t, SamePath(dir, filepath.Join(dir, "other")))
}
