package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArticle = `{
  "type": "doc",
  "content": [
    {"type": "heading", "attrs": {"level": 2}, "content": [{"type": "text", "text": "Intro"}]},
    {"type": "image", "attrs": {"src": "/images/cover.png?relatedTo=posts&slug=1/images", "alt": "cover", "width": 640}},
    {"type": "paragraph", "content": [
      {"type": "text", "text": "see /posts/1/images/a.png", "marks": [{"type": "link", "attrs": {"href": "/posts/1/images/a.png"}}]}
    ]},
    {"type": "video", "attrs": {"src": "/posts/1/videos/clip.mp4", "poster": "/posts/1/videos/poster.jpg"}},
    {"type": "audio", "attrs": {"src": "https://cdn.example.com/track.mp3", "poster": ""}},
    {"type": "imageGallery", "attrs": {"images": [{"src": "/posts/1/images/g1.png"}, {"src": "data:image/png;base64,AAAA"}]}},
    {"type": "image", "attrs": {"src": "data:image/gif;base64,R0lG"}},
    {"type": "blockquote", "content": [
      {"type": "image", "attrs": {"src": "/posts/1/images/nested.webp"}}
    ], "customField": {"keep": true}}
  ]
}`

func mustParse(t *testing.T, s string) *Node {
	t.Helper()
	n, err := Parse([]byte(s))
	require.NoError(t, err)
	return n
}

func TestParseRoundTripPreservesUnknownFields(t *testing.T) {
	doc := mustParse(t, sampleArticle)
	out, err := Encode(doc)
	require.NoError(t, err)
	assert.JSONEq(t, sampleArticle, string(out))
}

func TestParseArticleString(t *testing.T) {
	encoded, err := json.Marshal(`{"type":"doc","content":[{"type":"paragraph"}]}`)
	require.NoError(t, err)

	doc, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, "doc", doc.Type)
	require.Len(t, doc.Content, 1)
	assert.Equal(t, "paragraph", doc.Content[0].Type)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse([]byte(`null`))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse([]byte(`""`))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse([]byte(`42`))
	assert.Error(t, err)
	_, err = Parse([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestCollectAssetRefs(t *testing.T) {
	doc := mustParse(t, sampleArticle)
	before, err := Encode(doc)
	require.NoError(t, err)

	refs := CollectAssetRefs(doc)

	assert.Equal(t, []string{
		"/images/cover.png?relatedTo=posts&slug=1/images",
		"/posts/1/images/g1.png",
		"/posts/1/images/nested.webp",
		"/posts/1/videos/clip.mp4",
		"/posts/1/videos/poster.jpg",
		"https://cdn.example.com/track.mp3",
	}, SortedRefs(refs))

	after, err := Encode(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestCollectAssetRefsEmpty(t *testing.T) {
	assert.Equal(t, 0, CollectAssetRefs(nil).Cardinality())
	assert.Equal(t, 0, CollectAssetRefs(Placeholder()).Cardinality())
}

func TestRewriterLongestMatchWins(t *testing.T) {
	rw := NewRewriter(map[string]string{
		"a.png":                 "/posts/new/a.png",
		"/posts/1/images/a.png": "/posts/new/a-1.png",
		"":                      "ignored",
	})
	assert.Equal(t, 2, rw.Len())
	assert.Equal(t, "/posts/new/a-1.png", rw.String("/posts/1/images/a.png"))
	assert.Equal(t, "x /posts/new/a.png y", rw.String("x a.png y"))
	assert.Equal(t, "/posts/new/a-1.png and /posts/new/a.png",
		rw.String("/posts/1/images/a.png and a.png"))
}

func TestRewriterApply(t *testing.T) {
	doc := mustParse(t, sampleArticle)
	rw := NewRewriter(map[string]string{
		"/images/cover.png?relatedTo=posts&slug=1/images": "/posts/hello/cover.png",
		"/posts/1/images/a.png":                           "/posts/hello/a.png",
		"/posts/1/images/g1.png":                          "/posts/hello/g1.png",
		"/posts/1/images/nested.webp":                     "/posts/hello/nested.webp",
	})

	out := rw.Apply(doc)

	assert.Equal(t, "/posts/hello/cover.png", out.Content[1].Attrs["src"])
	assert.Equal(t, "cover", out.Content[1].Attrs["alt"])
	assert.Equal(t, json.Number("640"), out.Content[1].Attrs["width"])

	text := out.Content[2].Content[0]
	assert.Equal(t, "see /posts/1/images/a.png", text.Text, "text content is not rewritten")
	assert.Equal(t, "/posts/hello/a.png", text.Marks[0].Attrs["href"])

	gallery := out.Content[5].Attrs["images"].([]any)
	assert.Equal(t, "/posts/hello/g1.png", gallery[0].(map[string]any)["src"])

	assert.Equal(t, "/posts/hello/nested.webp", out.Content[7].Content[0].Attrs["src"])

	// the input tree is untouched
	assert.Equal(t, "/images/cover.png?relatedTo=posts&slug=1/images", doc.Content[1].Attrs["src"])
	assert.Equal(t, "/posts/1/images/g1.png", doc.Content[5].Attrs["images"].([]any)[0].(map[string]any)["src"])
}
