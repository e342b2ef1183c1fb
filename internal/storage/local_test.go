package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_OpenAndExists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "products"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "products", "sheet.xlsx"), []byte("data"), 0o644))

	store := NewLocal(root)

	assert.True(t, store.Exists("products/sheet.xlsx"))
	assert.True(t, store.Exists("/products/sheet.xlsx"))
	assert.False(t, store.Exists("products/missing.xlsx"))
	assert.False(t, store.Exists("products"), "directories are not files")

	f, size, err := store.Open("products/sheet.xlsx")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(4), size)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "data", string(body))

	_, _, err = store.Open("products/missing.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_StaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "storage")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0o644))

	store := NewLocal(root)
	assert.False(t, store.Exists("../secret.txt"))
	_, _, err := store.Open("../secret.txt")
	assert.Error(t, err)
}
