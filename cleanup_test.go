package postkit

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/document"
	"github.com/eringen/postkit/post"
)

func newTestSweeper(t *testing.T) (*OrphanSweepJob, *Store, *blob.MemoryStore) {
	t.Helper()
	s := setupTestStore(t)
	mem := blob.NewMemoryStore()
	logger, _ := logtest.NewNullLogger()
	return NewOrphanSweepJob(s, mem, logger, "@every 1h"), s, mem
}

func putAll(t *testing.T, mem *blob.MemoryStore, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, mem.Put(context.Background(), p, []byte(p), "image/png"))
	}
}

func TestSweepPostKeepsReferencedImages(t *testing.T) {
	sw, s, mem := newTestSweeper(t)
	ctx := context.Background()
	row := insertPost(t, s, "Post", "post", post.StatusDraft)
	row.ImageSrc = "/posts/1/images/cover.png"
	putAll(t, mem,
		"posts/1/images/cover.png",
		"posts/1/images/inline.png",
		"posts/1/images/gallery.png",
		"posts/1/images/orphan.png",
		"posts/1/videos/clip.mp4",
		"posts/2/images/other.png",
	)
	_, err := s.AddPostAsset(ctx, PostAsset{PostID: 1, Pathname: "posts/1/images/orphan.png", Kind: AssetImage})
	require.NoError(t, err)

	doc := &document.Node{Type: "doc", Content: []*document.Node{
		{Type: document.TypeImage, Attrs: map[string]any{"src": "/images/inline.png?relatedTo=posts&slug=1/images"}},
		{Type: document.TypeImageGallery, Attrs: map[string]any{"images": []any{
			map[string]any{"src": "/posts/1/images/gallery.png"},
		}}},
	}}

	removed, err := sw.SweepPost(ctx, row, doc, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/1/images/orphan.png"}, removed)

	left, err := mem.List(ctx, "posts/")
	require.NoError(t, err)
	assert.Len(t, left, 5)
	assets, err := s.ListPostAssets(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestOrphanSweepJobHonorsGrace(t *testing.T) {
	sw, s, mem := newTestSweeper(t)
	ctx := context.Background()
	insertPost(t, s, "Post", "post", post.StatusPublished)
	putAll(t, mem, "posts/1/images/fresh.png")

	// uploads younger than the grace period survive
	require.NoError(t, sw.Run(ctx))
	assert.Equal(t, 1, mem.Len())

	sw.now = func() time.Time { return time.Now().Add(DefaultSweepGrace + time.Hour) }
	require.NoError(t, sw.Run(ctx))
	assert.Equal(t, 0, mem.Len())
}

func TestOrphanSweepJobSkipsUnreadableArticles(t *testing.T) {
	sw, s, mem := newTestSweeper(t)
	ctx := context.Background()
	row := insertPost(t, s, "Post", "post", post.StatusDraft)
	p := articlePath(row.ID)
	_, err := s.UpdatePost(ctx, row.ID, post.Patch{BlobPath: &p})
	require.NoError(t, err)
	require.NoError(t, mem.Put(ctx, p, []byte(`[not json`), "application/json"))
	putAll(t, mem, "posts/1/images/maybe-used.png")

	sw.now = func() time.Time { return time.Now().Add(2 * DefaultSweepGrace) }
	require.NoError(t, sw.Run(ctx))
	_, err = mem.Get(ctx, "posts/1/images/maybe-used.png")
	assert.NoError(t, err)
}

func TestLoadArticleFallsBackToPlaceholder(t *testing.T) {
	mem := blob.NewMemoryStore()
	ctx := context.Background()

	doc, err := loadArticle(ctx, mem, post.Row{})
	require.NoError(t, err)
	assert.Equal(t, document.Placeholder(), doc)

	doc, err = loadArticle(ctx, mem, post.Row{BlobPath: "posts/9/article.json"})
	require.NoError(t, err)
	assert.Equal(t, document.Placeholder(), doc)

	require.NoError(t, mem.Put(ctx, "posts/9/article.json", []byte(`""`), "application/json"))
	doc, err = loadArticle(ctx, mem, post.Row{BlobPath: "posts/9/article.json"})
	require.NoError(t, err)
	assert.Equal(t, document.Placeholder(), doc)
}
