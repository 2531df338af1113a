package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalImageStorage_StoreAndDelete(t *testing.T) {
	dir := t.TempDir()
	storage := NewLocalImageStorage(dir, "/uploads")

	url, err := storage.Store(&ImageUpload{Filename: "../../Photo.PNG", ContentType: "image/png", Data: []byte("x")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.Equal(t, ".png", filepath.Ext(url))

	path := filepath.Join(dir, filepath.Base(url))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, storage.DeleteByURL(url))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, storage.DeleteByURL(url), "deleting twice is a no-op")
	assert.NoError(t, storage.DeleteByURL("https://elsewhere.example/x.png"))
	assert.NoError(t, storage.DeleteByURL("/uploads/"))
}

func TestLocalImageStorage_RejectsInvalidUploads(t *testing.T) {
	storage := NewLocalImageStorage(t.TempDir(), "")

	_, err := storage.Store(nil)
	assert.ErrorIs(t, err, ErrEmptyUpload)
	_, err = storage.Store(&ImageUpload{Filename: "a.png"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = storage.Store(&ImageUpload{Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	assert.ErrorIs(t, err, ErrNotAnImage)

	url, err := storage.Store(pngUpload("sniffed"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
}

func TestLocalImageStorage_DeleteCannotEscapeDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "uploads")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	outside := filepath.Join(root, "secret.png")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o644))

	storage := NewLocalImageStorage(dir, "/uploads/")
	require.NoError(t, storage.DeleteByURL("/uploads/../secret.png"))
	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestRemoveStoredImagesCollectsFailures(t *testing.T) {
	storage := &failingDeleteStorage{LocalImageStorage: NewLocalImageStorage(t.TempDir(), "")}
	failures := RemoveStoredImages(storage, []string{"/uploads/a.png", "/uploads/b.png"})
	assert.Len(t, failures, 2)
	assert.Equal(t, []string{"/uploads/a.png", "/uploads/b.png"}, storage.deleted)
}
