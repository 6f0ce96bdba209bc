package archive

import (
	"fmt"
	"path"
	"strings"

	"github.com/eringen/postkit/post"
)

// Candidate is one post found in an archive together with the entries that
// belong to it.
type Candidate struct {
	// Dir is the directory holding post.json, "" for the archive root.
	Dir      string
	Post     post.Definition
	Manifest *Manifest
	// Assets lists the media entry names owned by this post in archive order.
	Assets []string
}

// Candidates finds every post.json in a and pairs it with its manifest and
// media entries. Media entries go to the candidate with the longest
// enclosing directory; with a single candidate, entries outside every
// candidate directory go to it as well.
func Candidates(a *Archive) ([]Candidate, error) {
	var cands []Candidate
	for _, name := range a.Names() {
		if !isPostFile(name) {
			continue
		}
		data, _ := a.Get(name)
		payload, err := post.DecodePayload(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if payload.Batch || len(payload.Posts) != 1 {
			return nil, fmt.Errorf("%s: %w", name, post.Invalid("post", "post.json must hold a single post"))
		}
		dir := dirOf(name)
		m, err := closestManifest(a, dir)
		if err != nil {
			return nil, err
		}
		cands = append(cands, Candidate{Dir: dir, Post: payload.Posts[0], Manifest: m})
	}
	if len(cands) == 0 {
		return nil, ErrMissingPost
	}

	for _, name := range a.Names() {
		if isMetadata(name) {
			continue
		}
		owner := -1
		for i, c := range cands {
			if within(c.Dir, name) && (owner < 0 || len(c.Dir) > len(cands[owner].Dir)) {
				owner = i
			}
		}
		if owner < 0 && len(cands) == 1 {
			owner = 0
		}
		if owner >= 0 {
			cands[owner].Assets = append(cands[owner].Assets, name)
		}
	}
	return cands, nil
}

// closestManifest walks from dir up to the root and returns the first
// manifest.json carrying a files map.
func closestManifest(a *Archive, dir string) (*Manifest, error) {
	manifests := make(map[string]string)
	for _, name := range a.Names() {
		if strings.EqualFold(path.Base(name), ManifestFileName) {
			if _, seen := manifests[dirOf(name)]; !seen || path.Base(name) == ManifestFileName {
				manifests[dirOf(name)] = name
			}
		}
	}
	for {
		if name, ok := manifests[dir]; ok {
			data, _ := a.Get(name)
			m, err := decodeManifest(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, post.Invalid("manifest", "malformed JSON"))
			}
			if m != nil {
				return m, nil
			}
		}
		if dir == "" {
			return nil, nil
		}
		dir = dirOf(dir)
	}
}

// Metadata file names match without regard to case.
func isPostFile(name string) bool {
	return strings.EqualFold(path.Base(name), PostFileName)
}

func isMetadata(name string) bool {
	return isPostFile(name) || strings.EqualFold(path.Base(name), ManifestFileName)
}
