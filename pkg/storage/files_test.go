package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesIndexesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "duck.jpg"), []byte("x"), 0644))

	files, err := NewFiles(dir)
	require.NoError(t, err)
	assert.True(t, files.Exists("duck.jpg"))
	assert.False(t, files.Exists("pond.jpg"))
	assert.Equal(t, 1, files.Count())

	// Files created behind our back are still noticed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pond.jpg"), []byte("y"), 0644))
	assert.True(t, files.Exists("pond.jpg"))
}

func TestPublishNameNearLengthLimit(t *testing.T) {
	files, err := NewFiles(t.TempDir())
	require.NoError(t, err)
	name := strings.Repeat("a", 250) + ".jpg"

	n, err := files.Publish(strings.NewReader("long"), name, false)

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.FileExists(t, files.Path(name))
	entries, err := os.ReadDir(files.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is cleaned up")
}

func TestPublishCreatesFile(t *testing.T) {
	files, err := NewFiles(filepath.Join(t.TempDir(), "images"))
	require.NoError(t, err)

	n, err := files.Publish(strings.NewReader("image bytes"), "product image.jpg", false)
	require.NoError(t, err)
	assert.Equal(t, int64(len("image bytes")), n)

	data, err := os.ReadFile(files.Path("product image.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))

	entries, err := os.ReadDir(files.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is removed")
}

func TestPublishWithoutOverwriteKeepsExisting(t *testing.T) {
	files, err := NewFiles(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(files.Path("a.jpg"), []byte("old"), 0644))

	_, err = files.Publish(strings.NewReader("new"), "a.jpg", false)
	assert.ErrorIs(t, err, ErrExists)

	data, _ := os.ReadFile(files.Path("a.jpg"))
	assert.Equal(t, "old", string(data))
}

func TestPublishOverwrite(t *testing.T) {
	files, err := NewFiles(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(files.Path("a.jpg"), []byte("old"), 0644))

	_, err = files.Publish(strings.NewReader("new"), "a.jpg", true)
	require.NoError(t, err)

	data, _ := os.ReadFile(files.Path("a.jpg"))
	assert.Equal(t, "new", string(data))
}

func TestConcurrentPublishSameName(t *testing.T) {
	files, err := NewFiles(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = files.Publish(bytes.NewReader([]byte{byte('a' + i)}), "same.jpg", false)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, ErrExists)
		}
	}
	assert.Equal(t, 1, created, "exactly one writer wins")
}
