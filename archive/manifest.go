package archive

import (
	"encoding/json"
	"path"
	"time"

	"github.com/eringen/postkit/post"
)

// FormatVersion is written to the root manifest of batch exports.
const FormatVersion = 1

// TimeFormat is the layout of exportedAt timestamps.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t the way exportedAt fields are written.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ManifestEntry records where one original reference was stored.
type ManifestEntry struct {
	Path        string `json:"path"`
	Size        int    `json:"size"`
	ContentType string `json:"contentType"`
}

// ManifestMeta summarizes the exported post.
type ManifestMeta struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
	ExportedAt  string `json:"exportedAt"`
	Author      string `json:"author,omitempty"`
}

// Manifest maps original references to archive entries for one post.
type Manifest struct {
	Files map[string]ManifestEntry `json:"files"`
	Meta  ManifestMeta             `json:"meta"`
}

// RootManifestPost lists one post of a batch export.
type RootManifestPost struct {
	Slug     string  `json:"slug"`
	ID       int64   `json:"id"`
	Path     string  `json:"path"`
	Manifest *string `json:"manifest"`
}

// RootManifest indexes a batch export.
type RootManifest struct {
	ExportedAt    string             `json:"exportedAt"`
	FormatVersion int                `json:"formatVersion"`
	Count         int                `json:"count"`
	Posts         []RootManifestPost `json:"posts"`
}

// PostFile is the content of a post.json entry.
type PostFile struct {
	ExportedAt string          `json:"exportedAt"`
	Post       post.Definition `json:"post"`
}

// decodeManifest returns the per-post manifest in data, or nil when data is
// a root manifest or otherwise carries no files map.
func decodeManifest(data []byte) (*Manifest, error) {
	var probe struct {
		Files json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if len(probe.Files) == 0 || string(probe.Files) == "null" {
		return nil, nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// join joins an archive directory and a name; dir may be empty for the root.
func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

// dirOf returns the directory of an entry name, "" for root entries.
func dirOf(name string) string {
	d := path.Dir(name)
	if d == "." {
		return ""
	}
	return d
}

// within reports whether name lies inside dir ("" contains everything).
func within(dir, name string) bool {
	return dir == "" || len(name) > len(dir) && name[:len(dir)] == dir && name[len(dir)] == '/'
}
