package document

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Node types that carry media references.
const (
	TypeImage        = "image"
	TypeVideo        = "video"
	TypeAudio        = "audio"
	TypeImageGallery = "imageGallery"
)

// CollectAssetRefs returns every media reference in the tree: src of image,
// video and audio nodes, poster of video and audio nodes, and the src of each
// imageGallery entry. Empty values and data: URIs are skipped.
func CollectAssetRefs(root *Node) mapset.Set[string] {
	refs := mapset.NewThreadUnsafeSet[string]()
	Walk(root, func(n *Node) bool {
		switch n.Type {
		case TypeImage:
			addRef(refs, n.Attrs["src"])
		case TypeVideo, TypeAudio:
			addRef(refs, n.Attrs["src"])
			addRef(refs, n.Attrs["poster"])
		case TypeImageGallery:
			images, _ := n.Attrs["images"].([]any)
			for _, img := range images {
				if m, ok := img.(map[string]any); ok {
					addRef(refs, m["src"])
				}
			}
		}
		return true
	})
	return refs
}

func addRef(refs mapset.Set[string], v any) {
	s, ok := v.(string)
	if !ok {
		return
	}
	if strings.TrimSpace(s) == "" || strings.HasPrefix(s, "data:") {
		return
	}
	refs.Add(s)
}

// SortedRefs returns the set contents in lexical order.
func SortedRefs(refs mapset.Set[string]) []string {
	out := refs.ToSlice()
	sort.Strings(out)
	return out
}
