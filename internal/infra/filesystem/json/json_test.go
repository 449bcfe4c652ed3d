package json

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "meta.json")

	require.NoError(t, NewWriter().WriteJSON(path, map[string]string{"cacheKey": "abc"}))

	var got map[string]string
	require.NoError(t, NewReader().ReadJSON(path, &got))
	assert.Equal(t, "abc", got["cacheKey"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteBytes_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Storage.bin")
	w := NewWriter()

	require.NoError(t, w.WriteBytes(path, []byte{0x60, 0x80}))
	require.NoError(t, w.WriteBytes(path, []byte{0x01}))

	data, err := NewReader().ReadBytes(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, data)
}

func TestReadBytes_Missing(t *testing.T) {
	_, err := NewReader().ReadBytes(filepath.Join(t.TempDir(), "missing.bin"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
