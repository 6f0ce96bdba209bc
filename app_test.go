package postkit

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/postkit/archive"
	"github.com/eringen/postkit/asset"
	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/document"
	"github.com/eringen/postkit/post"
)

const photoRef = "/images/photo.png?relatedTo=posts&slug=1/images"

func newTestApp(t *testing.T) (*App, *blob.MemoryStore) {
	t.Helper()
	mem := blob.NewMemoryStore()
	logger, _ := logtest.NewNullLogger()
	app := New(SiteConfig{
		Name:            "Test Blog",
		URL:             "http://example.com",
		DatabasePath:    filepath.Join(t.TempDir(), "postkit.db"),
		SessionSecret:   "test-secret",
		CleanupSchedule: "off",
	}, DefaultViews(), WithBlobStore(mem), WithLogger(logger))
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { app.Close() })
	return app, mem
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageArticle(src string) string {
	return `{"type":"doc","content":[{"type":"image","attrs":{"src":"` + src + `","alt":"A photo"}}]}`
}

// seedPost inserts a post whose article is stored in the blob store.
func seedPost(t *testing.T, app *App, name, slug string, status post.Status, article string) post.Row {
	t.Helper()
	ctx := context.Background()
	row := insertPost(t, app.Store, name, slug, status)
	p := articlePath(row.ID)
	require.NoError(t, app.Blobs.Put(ctx, p, []byte(article), "application/json"))
	row, err := app.Store.UpdatePost(ctx, row.ID, post.Patch{BlobPath: &p})
	require.NoError(t, err)
	return row
}

// seedPhotoPost creates post 1, published, with one uploaded image used both
// in the article and as the cover.
func seedPhotoPost(t *testing.T, app *App) (post.Row, []byte) {
	t.Helper()
	ctx := context.Background()
	row := seedPost(t, app, "Hello", "hello", post.StatusPublished, imageArticle(photoRef))
	require.Equal(t, int64(1), row.ID)
	data := pngBytes(t, 2, 3)
	require.NoError(t, app.Blobs.Put(ctx, "posts/1/images/photo.png", data, "image/png"))
	row, err := app.Store.UpdatePost(ctx, row.ID, post.Patch{ImageSrc: post.String("/posts/1/images/photo.png")})
	require.NoError(t, err)
	_, err = app.Store.SetPostTags(ctx, row.ID, []post.Tag{{Name: "Go"}})
	require.NoError(t, err)
	return row, data
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

// call runs h directly with viewer logged in and the given name/value path
// params.
func call(app *App, h echo.HandlerFunc, req *http.Request, viewer *User, params ...string) (*httptest.ResponseRecorder, error) {
	rec := httptest.NewRecorder()
	c := app.Echo.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if viewer != nil {
		c.Set(viewerKey, viewer)
	}
	return rec, h(c)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func multipartRequest(t *testing.T, target string, files map[string][2]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, f := range files {
		part, err := w.CreateFormFile(field, f[0])
		require.NoError(t, err)
		_, err = part.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func admin() *User {
	return &User{ID: AdminUserID, Name: "Admin", Slug: "admin"}
}

func firstImageSrc(t *testing.T, article json.RawMessage) string {
	t.Helper()
	doc, err := document.Parse(article)
	require.NoError(t, err)
	var src string
	document.Walk(doc, func(n *document.Node) bool {
		if n.Type == document.TypeImage && src == "" {
			src, _ = n.Attrs["src"].(string)
		}
		return true
	})
	return src
}

func TestPublicPages(t *testing.T) {
	app, _ := newTestApp(t)
	seedPhotoPost(t, app)
	seedPost(t, app, "Secret", "secret", post.StatusDraft, imageArticle(photoRef))

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/p/hello/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Hello</h1>")
	assert.Contains(t, rec.Body.String(), `alt="A photo"`)

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/p/secret/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://example.com/p/hello/")
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), "http://example.com/?tag=go")

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/feed.xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<category>Go</category>")
	assert.Contains(t, rec.Body.String(), `<enclosure url="http://example.com/posts/1/images/photo.png" type="image/png" length="0"></enclosure>`)

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list postList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "hello", list.Posts[0].Slug)
}

func TestServeMedia(t *testing.T) {
	app, _ := newTestApp(t)
	_, data := seedPhotoPost(t, app)

	for _, target := range []string{photoRef, asset.ServingURL("posts/1/images/photo.png"), "/posts/1/images/photo.png"} {
		rec := serve(app, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
		assert.Equal(t, "public, max-age=31536000, immutable", rec.Header().Get("Cache-Control"))
		assert.Equal(t, data, rec.Body.Bytes())
	}

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/posts/1/images/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportSingleZip(t *testing.T) {
	app, _ := newTestApp(t)
	_, data := seedPhotoPost(t, app)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/hello/export", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="hello-export.zip"`, rec.Header().Get(echo.HeaderContentDisposition))

	arc, err := archive.Unpack(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, arc.Has(archive.PostFileName))
	assert.True(t, arc.Has(archive.ManifestFileName))
	got, ok := arc.Get("assets/photo.png")
	require.True(t, ok)
	assert.Equal(t, data, got)

	var pf archive.PostFile
	raw, _ := arc.Get(archive.PostFileName)
	require.NoError(t, json.Unmarshal(raw, &pf))
	assert.Equal(t, "Hello", pf.Post.Name)
	require.Len(t, pf.Post.Tags, 1)
	assert.Equal(t, "Go", pf.Post.Tags[0].Name)
	require.NotNil(t, pf.Post.User)
	assert.Equal(t, AdminUserID, pf.Post.User.ID)
}

func TestCallSetsEveryParam(t *testing.T) {
	app, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	var got []string
	_, err := call(app, func(c echo.Context) error {
		got = []string{c.Param("identifier"), c.Param("other")}
		return nil
	}, req, nil, "identifier", "hello", "other", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "2"}, got)
}

func TestExportSingleJSONWithoutAssets(t *testing.T) {
	app, _ := newTestApp(t)
	seedPhotoPost(t, app)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/1/export?format=json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var pf archive.PostFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pf))
	assert.Equal(t, "hello", pf.Post.Slug)
	assert.NotEmpty(t, pf.ExportedAt)
	assert.Equal(t, photoRef, firstImageSrc(t, pf.Post.Article))

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/1/export?assets=false", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	arc, err := archive.Unpack(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{archive.PostFileName}, arc.Names())

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/1/export?format=tar", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportDraftAccess(t *testing.T) {
	app, _ := newTestApp(t)
	seedPost(t, app, "Draft", "draft", post.StatusDraft, imageArticle(photoRef))

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/draft/export", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, ErrUnauthorized.Error(), apiErr.Message)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/draft/export", nil)
	_, err := call(app, app.handleExport, req, &User{ID: 2}, "identifier", "draft")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, http.StatusForbidden, errorStatus(err))

	req = httptest.NewRequest(http.MethodGet, "/api/posts/draft/export", nil)
	rec, err = call(app, app.handleExport, req, admin(), "identifier", "draft")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/nope/export", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchExport(t *testing.T) {
	app, _ := newTestApp(t)
	seedPhotoPost(t, app)
	seedPost(t, app, "Second", "second", post.StatusPublished, imageArticle(photoRef))

	rec := serve(app, jsonRequest(http.MethodPost, "/api/posts/export",
		`{"identifiers":["hello","1","second",""],"format":"json"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out batchExportJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Posts, 2)
	assert.Equal(t, "hello", out.Posts[0].Slug)
	assert.Equal(t, "second", out.Posts[1].Slug)

	rec = serve(app, jsonRequest(http.MethodPost, "/api/posts/export", `{"identifiers":["hello","second"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentDisposition), `attachment; filename="posts-export-`))
	arc, err := archive.Unpack(rec.Body.Bytes())
	require.NoError(t, err)
	var root archive.RootManifest
	raw, ok := arc.Get(archive.ManifestFileName)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(raw, &root))
	assert.Equal(t, 2, root.Count)
	assert.True(t, arc.Has("posts/hello/post.json"))
	assert.True(t, arc.Has("posts/second/post.json"))
	assert.True(t, arc.Has("posts/hello/assets/photo.png"))
	assert.True(t, arc.Has("posts/second/assets/photo.png"))

	rec = serve(app, jsonRequest(http.MethodPost, "/api/posts/export", `{"identifiers":["hello","missing"]}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(app, jsonRequest(http.MethodPost, "/api/posts/export", `{"identifiers":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportArchiveRoundTrip(t *testing.T) {
	app, mem := newTestApp(t)
	_, data := seedPhotoPost(t, app)

	arc, err := app.ExportArchive(context.Background(), []string{"hello"}, true)
	require.NoError(t, err)
	zipped, err := archive.Pack(arc)
	require.NoError(t, err)

	req := multipartRequest(t, "/api/posts/import", map[string][2]string{"file": {"hello-export.zip", string(zipped)}})
	req.Header.Set(UploadIDHeader, "import-1")
	rec, err := call(app, app.handleImport, req, admin())
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "import-1", rec.Header().Get(UploadIDHeader))

	var def post.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "hello-1", def.Slug)
	assert.NotEqual(t, int64(1), def.ID)
	require.NotNil(t, def.Image)
	assert.Equal(t, "/posts/hello-1/photo.png", def.Image.Src)

	// the cover and the article name the same file in different encodings
	assert.Equal(t, def.Image.Src, firstImageSrc(t, def.Article))
	obj, err := mem.Get(context.Background(), "posts/hello-1/photo.png")
	require.NoError(t, err)
	assert.Equal(t, data, obj.Data)
	stored, err := mem.List(context.Background(), "posts/hello-1/")
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	_, ok := app.uploads.Get("import-1")
	assert.False(t, ok, "finished imports leave the registry")
}

func TestImportJSONBatch(t *testing.T) {
	app, _ := newTestApp(t)

	body := `[{"name":"One","description":"first","tags":[{"name":"go"}]},{"post":{"name":"Two","description":"second"}}]`
	rec, err := call(app, app.handleImport, jsonRequest(http.MethodPost, "/api/posts/import", body), admin())
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out importResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
	assert.NotEmpty(t, out.UploadID)
	assert.Equal(t, "one", out.Posts[0].Slug)
	assert.Equal(t, "two", out.Posts[1].Slug)
	assert.Equal(t, post.StatusDraft, out.Posts[1].Status)

	_, err = call(app, app.handleImport, jsonRequest(http.MethodPost, "/api/posts/import", `[{"description":"no name"}]`), admin())
	assert.ErrorIs(t, err, post.ErrInvalid)
	assert.Equal(t, http.StatusBadRequest, errorStatus(err))

	rec = serve(app, jsonRequest(http.MethodPost, "/api/posts/import", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreatePost(t *testing.T) {
	app, _ := newTestApp(t)

	rec, err := call(app, app.handleCreatePost, jsonRequest(http.MethodPost, "/api/posts", `{"name":"Fresh","description":"new"}`), admin())
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, rec.Code)
	var def post.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "fresh", def.Slug)
	assert.Equal(t, "Start writing here.", mustFirstText(t, def.Article))

	_, err = call(app, app.handleCreatePost, jsonRequest(http.MethodPost, "/api/posts", `[{"name":"A"}]`), admin())
	assert.ErrorIs(t, err, post.ErrInvalid)
}

func mustFirstText(t *testing.T, article json.RawMessage) string {
	t.Helper()
	doc, err := document.Parse(article)
	require.NoError(t, err)
	var text string
	document.Walk(doc, func(n *document.Node) bool {
		if n.Type == "text" && text == "" {
			text = n.Text
		}
		return true
	})
	return text
}

func TestDuplicatePost(t *testing.T) {
	app, mem := newTestApp(t)
	_, data := seedPhotoPost(t, app)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodPost, "/api/posts/hello/duplicate", nil)
	rec, err := call(app, app.handleDuplicatePost, req, admin(), "identifier", "hello")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, rec.Code)

	var def post.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "hello-copy", def.Slug)
	assert.Equal(t, "Hello (Copy)", def.Name)
	assert.Equal(t, post.StatusDraft, def.Status)
	assert.Equal(t, asset.ServingURL("posts/2/images/photo.png"), firstImageSrc(t, def.Article))
	require.NotNil(t, def.Image)
	assert.Equal(t, "/posts/2/images/photo.png", def.Image.Src)
	require.Len(t, def.Tags, 1)
	assert.Equal(t, "Go", def.Tags[0].Name)

	obj, err := mem.Get(ctx, "posts/2/images/photo.png")
	require.NoError(t, err)
	assert.Equal(t, data, obj.Data)

	req = httptest.NewRequest(http.MethodPost, "/api/posts/hello/duplicate", nil)
	rec, err = call(app, app.handleDuplicatePost, req, admin(), "identifier", "hello")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "hello-copy-2", def.Slug)

	// the source is untouched
	src, err := app.Store.GetPost(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, post.StatusPublished, src.Status)
	assert.Equal(t, "/posts/1/images/photo.png", src.ImageSrc)
}

func TestUpdatePostSweepsOrphans(t *testing.T) {
	app, mem := newTestApp(t)
	ctx := context.Background()
	seedPhotoPost(t, app)
	require.NoError(t, mem.Put(ctx, "posts/1/images/old.png", pngBytes(t, 1, 1), "image/png"))
	_, err := app.Store.AddPostAsset(ctx, PostAsset{PostID: 1, Pathname: "posts/1/images/old.png", Kind: AssetImage})
	require.NoError(t, err)

	body := `{"name":"Hello again","tags":[{"name":"Rust"}],"article":` + imageArticle(asset.ServingURL("posts/1/images/photo.png")) + `}`
	rec, err := call(app, app.handleUpdatePost, jsonRequest(http.MethodPut, "/api/posts/1", body), admin(), "identifier", "1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var def post.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "Hello again", def.Name)
	assert.Equal(t, "hello", def.Slug)
	require.Len(t, def.Tags, 1)
	assert.Equal(t, "Rust", def.Tags[0].Name)

	_, err = mem.Get(ctx, "posts/1/images/old.png")
	assert.ErrorIs(t, err, blob.ErrNotFound)
	_, err = mem.Get(ctx, "posts/1/images/photo.png")
	assert.NoError(t, err)
	assets, err := app.Store.ListPostAssets(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestUpdatePostValidation(t *testing.T) {
	app, _ := newTestApp(t)
	seedPost(t, app, "A", "a", post.StatusDraft, imageArticle(photoRef))
	seedPost(t, app, "B", "b", post.StatusDraft, imageArticle(photoRef))

	tests := []struct {
		name string
		body string
		want error
	}{
		{"slug taken", `{"slug":"B"}`, archive.ErrSlugConflict},
		{"empty name", `{"name":"  "}`, post.ErrInvalid},
		{"bad status", `{"status":"gone"}`, post.ErrInvalid},
		{"links object", `{"links":{"a":1}}`, post.ErrInvalid},
		{"bad article", `{"article":[1,2]}`, post.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(app, app.handleUpdatePost, jsonRequest(http.MethodPut, "/api/posts/a", tt.body), admin(), "identifier", "a")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := call(app, app.handleUpdatePost, jsonRequest(http.MethodPut, "/api/posts/a", `{"name":"x"}`), &User{ID: 2}, "identifier", "a")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSlugCheck(t *testing.T) {
	app, _ := newTestApp(t)
	seedPost(t, app, "Hello", "hello", post.StatusDraft, imageArticle(photoRef))

	tests := []struct {
		query     string
		slug      string
		available bool
	}{
		{"Hello%20World", "hello-world", true},
		{"HELLO", "hello", false},
	}
	for _, tt := range tests {
		rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/slug/check?slug="+tt.query, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var got slugCheck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, slugCheck{Slug: tt.slug, Available: tt.available}, got)
	}

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/posts/slug/check?slug=---", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeletePostRemovesMedia(t *testing.T) {
	app, mem := newTestApp(t)
	seedPhotoPost(t, app)
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, "posts/hello/imported.png", []byte("x"), "image/png"))
	require.NoError(t, mem.Put(ctx, "posts/10/images/other.png", []byte("x"), "image/png"))

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/hello", nil)
	rec, err := call(app, app.handleDeletePost, req, admin(), "identifier", "hello")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = app.Store.GetPost(ctx, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
	left, err := mem.List(ctx, "posts/")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "posts/10/images/other.png", left[0].Pathname)
}

func TestUploadListDeleteImage(t *testing.T) {
	app, mem := newTestApp(t)
	seedPost(t, app, "Hello", "hello", post.StatusDraft, imageArticle(photoRef))
	ctx := context.Background()

	req := multipartRequest(t, "/api/posts/1/images", map[string][2]string{"file": {"My Photo.png", string(pngBytes(t, 4, 3))}})
	rec, err := call(app, app.handleUploadImage, req, admin(), "identifier", "1")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, rec.Code)

	var up uploadedAsset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.True(t, strings.HasPrefix(up.Pathname, "posts/1/images/"), up.Pathname)
	assert.Equal(t, 4, up.Width)
	assert.Equal(t, 3, up.Height)
	assert.Equal(t, "image/png", up.ContentType)
	assert.Equal(t, asset.ServingURL(up.Pathname), up.URL)

	rec = serve(app, httptest.NewRequest(http.MethodGet, up.URL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/posts/1/images", nil)
	rec, err = call(app, app.handleListImages, req, admin(), "identifier", "1")
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	req = httptest.NewRequest(http.MethodDelete, "/api/posts/1/images?pathname="+strings.ReplaceAll(up.URL, "&", "%26"), nil)
	rec, err = call(app, app.handleDeleteImage, req, admin(), "identifier", "1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = mem.Get(ctx, up.Pathname)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	req = httptest.NewRequest(http.MethodDelete, "/api/posts/1/images?pathname=posts/2/images/x.png", nil)
	_, err = call(app, app.handleDeleteImage, req, admin(), "identifier", "1")
	assert.ErrorIs(t, err, post.ErrInvalid)

	req = multipartRequest(t, "/api/posts/1/images", map[string][2]string{"file": {"notes.png", "not an image"}})
	_, err = call(app, app.handleUploadImage, req, admin(), "identifier", "1")
	assert.ErrorIs(t, err, post.ErrInvalid)
}

func TestUploadVideoWithPoster(t *testing.T) {
	app, _ := newTestApp(t)
	seedPost(t, app, "Hello", "hello", post.StatusDraft, imageArticle(photoRef))

	req := multipartRequest(t, "/api/posts/1/videos", map[string][2]string{
		"file":   {"clip.mp4", "fake mp4 bytes"},
		"poster": {"frame.png", string(pngBytes(t, 2, 2))},
	})
	rec, err := call(app, app.handleUploadVideo, req, admin(), "identifier", "1")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, rec.Code)

	var up uploadedAsset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.True(t, strings.HasPrefix(up.Pathname, "posts/1/videos/"), up.Pathname)
	assert.Equal(t, "video/mp4", up.ContentType)
	require.NotNil(t, up.Poster)
	assert.Equal(t, AssetPoster, up.Poster.Kind)
	assert.Contains(t, up.Poster.Pathname, "-poster-frame.png")

	req = multipartRequest(t, "/api/posts/1/videos", map[string][2]string{"file": {"clip.avi", "x"}})
	_, err = call(app, app.handleUploadVideo, req, admin(), "identifier", "1")
	assert.ErrorIs(t, err, post.ErrInvalid)
}
