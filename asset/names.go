package asset

import (
	"fmt"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/eringen/postkit/post"
)

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"ogg":  "video/ogg",
}

// DefaultContentType is used when nothing better is known.
const DefaultContentType = "application/octet-stream"

// GuessContentType returns a MIME type from the extension of name, ignoring
// any query string.
func GuessContentType(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return DefaultContentType
}

// NameSet hands out collision-free names. A name already handed out gets a
// numeric suffix before its extension: a.png, a-1.png, a-2.png.
// It is not safe for concurrent use.
type NameSet struct {
	used mapset.Set[string]
}

// NewNameSet returns a NameSet with the given names already taken.
func NewNameSet(taken ...string) *NameSet {
	return &NameSet{used: mapset.NewThreadUnsafeSet(taken...)}
}

// Taken reports whether name has been handed out.
func (s *NameSet) Taken(name string) bool {
	return s.used.Contains(name)
}

// Reserve returns name, or the first free suffixed variant of it, and marks
// the result as taken.
func (s *NameSet) Reserve(name string) string {
	if s.used.Add(name) {
		return name
	}
	stem, ext := splitExt(name)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if s.used.Add(candidate) {
			return candidate
		}
	}
}

func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" || strings.HasSuffix(stem, "/") {
		return name, ""
	}
	return stem, ext
}

// SafeFilename turns an uploaded file name into a URL-safe one, keeping a
// lower-cased extension. Names that slugify to nothing become "file".
func SafeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(path.Ext(name))
	base := post.Slugify(strings.TrimSuffix(name, path.Ext(name)))
	if base == "" {
		base = "file"
	}
	if ext == "." || strings.ContainsAny(ext, "/?#") {
		ext = ""
	}
	return base + ext
}
