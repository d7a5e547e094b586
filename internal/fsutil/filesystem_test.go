package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem_WriteCreatesParents(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/out/labels/a.txt", []byte("0 0.5 0.5 0.1 0.1\n"), 0o644))

	assert.True(t, IsDir(m, "/out"))
	assert.True(t, IsDir(m, "/out/labels"))
	assert.True(t, Exists(m, "/out/labels/a.txt"))
	assert.False(t, IsDir(m, "/out/labels/a.txt"))

	data, err := m.ReadFile("/out/labels/../labels/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "0 0.5 0.5 0.1 0.1\n", string(data))
}

func TestMemoryFileSystem_ReadDirSorted(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/src/b.jpg", []byte("b"), 0o644))
	require.NoError(t, m.WriteFile("/src/a.jpg", []byte("aa"), 0o644))
	require.NoError(t, m.MkdirAll("/src/Zed", 0o755))
	require.NoError(t, m.WriteFile("/src/Zed/z.jpg", []byte("z"), 0o644))

	entries, err := m.ReadDir("/src")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"Zed", "a.jpg", "b.jpg"}, names)
	assert.True(t, entries[0].IsDir())

	_, err = m.ReadDir("/missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMemoryFileSystem_DataIsolation(t *testing.T) {
	m := NewMemoryFileSystem()
	buf := []byte("abc")
	require.NoError(t, m.WriteFile("/f", buf, 0o644))
	buf[0] = 'X'

	got, err := m.ReadFile("/f")
	require.NoError(t, err)
	got[1] = 'Y'

	again, err := m.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestCopyFileAndSameSize(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/src/img.png", []byte("pixels"), 0o644))

	require.NoError(t, CopyFile(m, "/src/img.png", "/dst/images/img.png"))
	assert.True(t, SameSize(m, "/src/img.png", "/dst/images/img.png"))
	assert.False(t, SameSize(m, "/src/img.png", "/dst/images/none.png"))

	err := CopyFile(m, "/src/none.png", "/dst/x.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	var fsys FileSystem = OSFileSystem{}

	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "images"), 0o755))
	src := filepath.Join(dir, "a.bin")
	require.NoError(t, fsys.WriteFile(src, []byte{1, 2, 3}, 0o644))
	dst := filepath.Join(dir, "images", "a.bin")
	require.NoError(t, CopyFile(fsys, src, dst))

	assert.True(t, SameSize(fsys, src, dst))
	entries, err := fsys.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
