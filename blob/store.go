// Package blob provides the path-addressed object storage that holds post
// articles and media. Backends are interchangeable behind Store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no object exists at a path.
var ErrNotFound = errors.New("blob: not found")

// ErrInvalidPath is returned for paths that are empty, absolute, or escape
// the store root.
var ErrInvalidPath = errors.New("blob: invalid path")

// Object is a stored blob with its data.
type Object struct {
	Pathname    string
	Data        []byte
	ContentType string
}

// Item describes a stored blob in a listing.
type Item struct {
	Pathname   string
	Size       int64
	UploadedAt time.Time
}

// Store is a path-addressed blob store. Paths are slash-separated and
// relative, e.g. "posts/12/article.json".
type Store interface {
	// Get returns the object at path, or ErrNotFound.
	Get(ctx context.Context, path string) (*Object, error)
	// Put writes data at path, replacing any existing object.
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// List returns every object whose path starts with prefix, sorted by path.
	List(ctx context.Context, prefix string) ([]Item, error)
	// Delete removes the object at path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
}

// ValidatePath rejects paths that could escape the store root.
func ValidatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") || strings.Contains(p, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// Copy duplicates every object under srcPrefix to the same relative path
// under dstPrefix and returns the destination paths written.
func Copy(ctx context.Context, s Store, srcPrefix, dstPrefix string) ([]string, error) {
	items, err := s.List(ctx, srcPrefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", srcPrefix, err)
	}
	var written []string
	for _, it := range items {
		obj, err := s.Get(ctx, it.Pathname)
		if err != nil {
			return written, fmt.Errorf("get %s: %w", it.Pathname, err)
		}
		dst := dstPrefix + strings.TrimPrefix(it.Pathname, srcPrefix)
		if err := s.Put(ctx, dst, obj.Data, obj.ContentType); err != nil {
			return written, fmt.Errorf("put %s: %w", dst, err)
		}
		written = append(written, dst)
	}
	return written, nil
}
