package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeImplementations(t *testing.T) map[string]Store {
	fs, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory":     NewMemoryStore(),
		"filesystem": fs,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "posts/1/missing.png")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "posts/1/images/a.png", []byte("aaa"), "image/png"))
			require.NoError(t, s.Put(ctx, "posts/1/article.json", []byte(`{}`), "application/json"))
			require.NoError(t, s.Put(ctx, "posts/10/images/b.png", []byte("b"), ""))
			require.NoError(t, s.Put(ctx, "posts/1/images/a.png", []byte("replaced"), "image/png"))

			obj, err := s.Get(ctx, "posts/1/images/a.png")
			require.NoError(t, err)
			assert.Equal(t, []byte("replaced"), obj.Data)
			assert.Equal(t, "posts/1/images/a.png", obj.Pathname)

			items, err := s.List(ctx, "posts/1/")
			require.NoError(t, err)
			var paths []string
			for _, it := range items {
				paths = append(paths, it.Pathname)
			}
			assert.Equal(t, []string{"posts/1/article.json", "posts/1/images/a.png"}, paths)
			assert.Equal(t, int64(len("replaced")), items[1].Size)

			require.NoError(t, s.Delete(ctx, "posts/1/images/a.png"))
			require.NoError(t, s.Delete(ctx, "posts/1/images/a.png"))
			_, err = s.Get(ctx, "posts/1/images/a.png")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreRejectsUnsafePaths(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"", "/abs", "a/../../etc", "dir/", "a//b", `a\b`} {
				err := s.Put(ctx, p, []byte("x"), "")
				assert.True(t, errors.Is(err, ErrInvalidPath), "path %q", p)
			}
		})
	}
}

func TestFileSystemStoreSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStore(root)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "posts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "posts", tempPrefix+"123"), []byte("x"), 0o644))
	require.NoError(t, s.Put(context.Background(), "posts/a.txt", []byte("a"), ""))

	items, err := s.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "posts/a.txt", items[0].Pathname)
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "posts/1/article.json", []byte(`{"a":1}`), "application/json"))
	require.NoError(t, s.Put(ctx, "posts/1/images/x.png", []byte("x"), "image/png"))
	require.NoError(t, s.Put(ctx, "posts/12/article.json", []byte(`{}`), ""))

	written, err := Copy(ctx, s, "posts/1/", "posts/2/")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/2/article.json", "posts/2/images/x.png"}, written)

	obj, err := s.Get(ctx, "posts/2/images/x.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestNewStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	s, err := NewStoreFromConfig(ctx, Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStoreFromConfig(ctx, Config{Type: "filesystem", Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileSystemStore{}, s)

	_, err = NewStoreFromConfig(ctx, Config{Type: "filesystem"})
	assert.Error(t, err)

	_, err = NewStoreFromConfig(ctx, Config{Type: "s3"})
	assert.Error(t, err)

	_, err = NewStoreFromConfig(ctx, Config{Type: "ftp"})
	assert.Error(t, err)
}
