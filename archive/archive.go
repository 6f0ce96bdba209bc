// Package archive implements the portable post export format: an ordered
// set of named entries holding post metadata, manifests and media assets,
// packed as a zip file.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidEntryName is returned for empty, absolute, traversing, or
	// directory-style entry names.
	ErrInvalidEntryName = errors.New("archive: invalid entry name")
	// ErrDuplicateEntry is returned when an entry name is added twice.
	ErrDuplicateEntry = errors.New("archive: duplicate entry")
	// ErrTooLarge is returned when an archive expands beyond the unpack limit.
	ErrTooLarge = errors.New("archive: too large")
	// ErrCorrupt is returned when the input is not a readable zip.
	ErrCorrupt = errors.New("archive: not a valid zip file")
	// ErrMissingPost is returned when an archive holds no post.json.
	ErrMissingPost = errors.New("archive: no post.json found")
)

// Reserved entry names.
const (
	PostFileName     = "post.json"
	ManifestFileName = "manifest.json"
	AssetsDir        = "assets"
	PostsDir         = "posts"
)

// Archive is an ordered mapping from entry name to bytes.
type Archive struct {
	names   []string
	entries map[string][]byte
}

// New returns an empty Archive.
func New() *Archive {
	return &Archive{entries: make(map[string][]byte)}
}

// ValidateName rejects entry names that are empty, start or end with "/",
// or contain an empty, "." or ".." segment.
func ValidateName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
		}
	}
	return nil
}

// Add appends an entry. The data is not copied.
func (a *Archive) Add(name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, ok := a.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}
	if data == nil {
		data = []byte{}
	}
	a.names = append(a.names, name)
	a.entries[name] = data
	return nil
}

// AddText appends a UTF-8 text entry.
func (a *Archive) AddText(name, text string) error {
	return a.Add(name, []byte(text))
}

// AddJSON appends v encoded as indented JSON.
func (a *Archive) AddJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return a.Add(name, data)
}

// Get returns the bytes stored under name.
func (a *Archive) Get(name string) ([]byte, bool) {
	data, ok := a.entries[name]
	return data, ok
}

// Names returns the entry names in insertion order.
func (a *Archive) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.names)
}

// Has reports whether an entry named name exists.
func (a *Archive) Has(name string) bool {
	_, ok := a.entries[name]
	return ok
}
