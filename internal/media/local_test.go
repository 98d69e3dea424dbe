package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/office-hub/internal/models"
)

func TestSaveAndRemove(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), 1024)
	require.NoError(t, err)

	p, err := store.Save(ctx, "employees/2026/10/17", "Photo.JPG", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "employees/2026/10/17/"))
	assert.True(t, strings.HasSuffix(p, ".jpg"))

	data, err := os.ReadFile(filepath.Join(store.Root, filepath.FromSlash(p)))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	store.Remove(ctx, []string{p, "employees/missing.jpg"})
	_, err = os.Stat(filepath.Join(store.Root, filepath.FromSlash(p)))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveRejectsUnsupportedType(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "employees", "script.sh", strings.NewReader("#!/bin/sh"))
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "image", ve.Field)
}

func TestSaveEnforcesLimit(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, 4)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "covers", "a.png", strings.NewReader("too large"))
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)

	entries, err := os.ReadDir(filepath.Join(root, "covers"))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial upload must be removed")
}

func TestRemoveStaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	outside := filepath.Join(parent, "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	store, err := NewLocalStore(filepath.Join(parent, "media"), 0)
	require.NoError(t, err)

	store.Remove(context.Background(), []string{"../keep.txt"})
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}
