package views

import (
	"bytes"
	"context"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/postkit/document"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestArticleRendersTree(t *testing.T) {
	doc, err := document.Parse([]byte(`{"type":"doc","content":[
		{"type":"heading","attrs":{"level":3},"content":[{"type":"text","text":"Title"}]},
		{"type":"paragraph","content":[
			{"type":"text","text":"a <b>"},
			{"type":"text","text":"bold","marks":[{"type":"bold"},{"type":"link","attrs":{"href":"https://example.com","target":"_blank"}}]}
		]},
		{"type":"image","attrs":{"src":"/images/a.png?relatedTo=posts&slug=1/images","alt":"A"}},
		{"type":"video","attrs":{"src":"/posts/1/videos/v.mp4","poster":"/posts/1/images/p.png"}}
	]}`))
	require.NoError(t, err)

	out := render(t, Article(doc))
	assert.Contains(t, out, "<h3>Title</h3>")
	assert.Contains(t, out, "a &lt;b&gt;")
	assert.Contains(t, out, `<strong><a href="https://example.com" target="_blank" rel="noopener noreferrer">bold</a></strong>`)
	assert.Contains(t, out, `src="/images/a.png?relatedTo=posts&amp;slug=1/images"`)
	assert.Contains(t, out, `fetchpriority="high"`)
	assert.Contains(t, out, `<video controls preload="metadata" src="/posts/1/videos/v.mp4" poster="/posts/1/images/p.png"></video>`)
}

func TestArticleDropsUnsafeURLs(t *testing.T) {
	doc := &document.Node{Type: "doc", Content: []*document.Node{
		{Type: "image", Attrs: map[string]any{"src": "javascript:alert(1)"}},
		{Type: "paragraph", Content: []*document.Node{
			{Type: "text", Text: "click", Marks: []*document.Mark{{Type: "link", Attrs: map[string]any{"href": "javascript:alert(1)"}}}},
		}},
	}}

	out := render(t, Article(doc))
	assert.NotContains(t, out, "javascript")
	assert.Contains(t, out, "<p>click</p>")
}

func TestArticleGallery(t *testing.T) {
	doc := &document.Node{Type: "imageGallery", Attrs: map[string]any{
		"images": []any{
			map[string]any{"src": "/posts/1/images/g1.png", "alt": "one"},
			map[string]any{"src": "/posts/1/images/g2.png"},
		},
	}}

	out := render(t, Article(doc))
	assert.Contains(t, out, `<div class="gallery">`)
	assert.Contains(t, out, `src="/posts/1/images/g1.png" alt="one"`)
	assert.Contains(t, out, `loading="lazy" src="/posts/1/images/g2.png"`)
}

func TestPostPageIncludesMetadata(t *testing.T) {
	site := SiteConfig{Name: "Blog", URL: "https://blog.example.com"}
	page := PostPage{
		Site:    site,
		Post:    PostSummary{Name: "Hello", Slug: "hello", Tags: []string{"go"}},
		Article: document.Placeholder(),
	}

	out := render(t, Post(page))
	assert.Contains(t, out, `<link rel="canonical" href="https://blog.example.com/p/hello/"/>`)
	assert.Contains(t, out, `"@type":"BlogPosting"`)
	assert.Contains(t, out, "Start writing here.")
}

func TestFilterRelatedPosts(t *testing.T) {
	current := PostSummary{Slug: "a", Tags: []string{"Go"}}
	posts := []PostSummary{
		current,
		{Slug: "b", Tags: []string{"go "}},
		{Slug: "c", Tags: []string{"rust"}},
	}

	related := FilterRelatedPosts(current, posts)
	require.Len(t, related, 1)
	assert.Equal(t, "b", related[0].Slug)
}
