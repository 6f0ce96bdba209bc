package postkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/labstack/echo/v4"

	"github.com/eringen/postkit/archive"
	"github.com/eringen/postkit/asset"
	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/document"
	"github.com/eringen/postkit/post"
)

type postList struct {
	Posts []post.Definition `json:"posts"`
	Count int               `json:"count"`
}

// handleListPosts lists posts without their articles. Anonymous viewers see
// published posts; logged-in users also see their own drafts.
func (a *App) handleListPosts(c echo.Context) error {
	ctx := c.Request().Context()
	viewer := Viewer(c)
	f := ListFilter{Status: post.Status(c.QueryParam("status")), Tag: c.QueryParam("tag")}
	if f.Status != "" && !f.Status.Valid() {
		return post.Invalid("status", "must be one of draft, published, archived")
	}
	if viewer == nil {
		f.Status = post.StatusPublished
	}
	rows, err := a.Store.ListPosts(ctx, f)
	if err != nil {
		return err
	}
	out := postList{Posts: []post.Definition{}}
	for _, row := range rows {
		if canView(viewer, row) != nil {
			continue
		}
		tags, err := a.Store.PostTags(ctx, row.ID)
		if err != nil {
			return err
		}
		out.Posts = append(out.Posts, row.Definition(nil, tags, nil))
	}
	out.Count = len(out.Posts)
	return c.JSON(http.StatusOK, out)
}

func (a *App) handleGetPost(c echo.Context) error {
	ctx := c.Request().Context()
	row, err := a.lookupPost(ctx, c.Param("identifier"))
	if err != nil {
		return err
	}
	if err := canView(Viewer(c), row); err != nil {
		return err
	}
	def, err := a.definition(ctx, row)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, def)
}

// handleCreatePost creates one post from a definition, in any shape the
// importer accepts.
func (a *App) handleCreatePost(c echo.Context) error {
	ctx := c.Request().Context()
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	payload, err := post.DecodePayload(body)
	if err != nil {
		return err
	}
	if payload.Batch || len(payload.Posts) != 1 {
		return post.Invalid("posts", "expected a single post")
	}
	res, err := a.importer(nil).ImportPayload(ctx, Viewer(c).ID, payload)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	def, err := a.importedDefinition(res.Posts[0], Viewer(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, def)
}

// updateRequest is a partial update. Absent fields are left unchanged.
type updateRequest struct {
	Name        *string         `json:"name"`
	Slug        *string         `json:"slug"`
	Description *string         `json:"description"`
	Image       *post.Image     `json:"image"`
	Language    *string         `json:"language"`
	Status      *post.Status    `json:"status"`
	Links       json.RawMessage `json:"links"`
	Article     json.RawMessage `json:"article"`
	Tags        *[]post.Tag     `json:"tags"`
}

// merged returns the definition row would have after the update, for
// validation.
func (r updateRequest) merged(row post.Row, tags []post.Tag) post.Definition {
	d := row.Definition(nil, tags, nil)
	if r.Name != nil {
		d.Name = *r.Name
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.Status != nil {
		d.Status = *r.Status
	}
	if r.Tags != nil {
		d.Tags = *r.Tags
	}
	return d
}

func (a *App) handleUpdatePost(c echo.Context) error {
	ctx := c.Request().Context()
	row, err := a.lookupPost(ctx, c.Param("identifier"))
	if err != nil {
		return err
	}
	if err := canEdit(Viewer(c), row); err != nil {
		return err
	}
	var req updateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return err
	}
	tags, err := a.Store.PostTags(ctx, row.ID)
	if err != nil {
		return err
	}
	if err := post.Validate(req.merged(row, tags)); err != nil {
		return err
	}

	patch := post.Patch{
		Name:        req.Name,
		Description: req.Description,
		Language:    req.Language,
		Status:      req.Status,
	}
	if req.Slug != nil {
		slug := post.Slugify(*req.Slug)
		if slug == "" {
			return post.Invalid("slug", "must contain a letter or digit")
		}
		if slug != row.Slug {
			taken, err := a.Store.SlugExists(ctx, slug)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s", archive.ErrSlugConflict, slug)
			}
			patch.Slug = &slug
		}
	}
	if req.Image != nil {
		patch.ImageSrc = &req.Image.Src
		patch.ImageAlt = &req.Image.Alt
	}
	if len(req.Links) > 0 {
		if !json.Valid(req.Links) || req.Links[0] != '[' {
			return post.Invalid("links", "must be an array")
		}
		patch.Links = post.String(string(req.Links))
	}

	var doc *document.Node
	if len(req.Article) > 0 {
		doc, err = document.Parse(req.Article)
		if errors.Is(err, document.ErrEmpty) {
			doc, err = document.Placeholder(), nil
		}
		if err != nil {
			return post.Invalid("article", err.Error())
		}
		data, err := document.Encode(doc)
		if err != nil {
			return err
		}
		p := articlePath(row.ID)
		if err := a.Blobs.Put(ctx, p, data, "application/json"); err != nil {
			return fmt.Errorf("store article: %w", err)
		}
		if row.BlobPath != p {
			patch.BlobPath = &p
		}
	}

	updated, err := a.Store.UpdatePost(ctx, row.ID, patch)
	if err != nil {
		return err
	}
	if req.Tags != nil {
		if _, err := a.Store.SetPostTags(ctx, row.ID, *req.Tags); err != nil {
			return err
		}
	}
	if doc != nil {
		removed, err := a.sweeper.SweepPost(ctx, updated, doc, a.sweeper.now())
		if err != nil {
			a.Log.WithError(err).WithField("post", row.ID).Warn("orphan cleanup failed")
		} else if len(removed) > 0 {
			a.Log.WithField("post", row.ID).WithField("removed", len(removed)).Info("removed orphan images")
		}
	}
	a.Cache.Invalidate()

	def, err := a.definition(ctx, updated)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, def)
}

func (a *App) handleDeletePost(c echo.Context) error {
	ctx := c.Request().Context()
	row, err := a.lookupPost(ctx, c.Param("identifier"))
	if err != nil {
		return err
	}
	if err := canEdit(Viewer(c), row); err != nil {
		return err
	}
	if err := a.Store.DeletePost(ctx, row.ID); err != nil {
		return err
	}
	for _, prefix := range postPrefixes(row) {
		if err := deletePrefix(ctx, a.Blobs, prefix); err != nil {
			a.Log.WithError(err).WithField("prefix", prefix).Warn("leaving blobs of deleted post")
		}
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

type slugCheck struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
}

func (a *App) handleSlugCheck(c echo.Context) error {
	slug := post.Slugify(c.QueryParam("slug"))
	if slug == "" {
		return post.Invalid("slug", "is required")
	}
	taken, err := a.Store.SlugExists(c.Request().Context(), slug)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slugCheck{Slug: slug, Available: !taken})
}

// handleDuplicatePost copies a post, its tags and its media into a new
// draft owned by the viewer. A failed copy leaves nothing behind.
func (a *App) handleDuplicatePost(c echo.Context) error {
	ctx := c.Request().Context()
	viewer := Viewer(c)
	src, err := a.lookupPost(ctx, c.Param("identifier"))
	if err != nil {
		return err
	}
	if err := canView(viewer, src); err != nil {
		return err
	}
	dup, err := a.duplicate(ctx, src, viewer.ID)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	def, err := a.definition(ctx, dup)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, def)
}

func (a *App) duplicate(ctx context.Context, src post.Row, owner int64) (post.Row, error) {
	slug, err := a.copySlug(ctx, src.Slug)
	if err != nil {
		return post.Row{}, err
	}
	row := src
	row.ID = 0
	row.UserID = owner
	row.Name = src.Name + " (Copy)"
	row.Slug = slug
	row.Status = post.StatusDraft
	row.BlobPath = ""
	row.CreatedAt, row.UpdatedAt, row.PublishedAt = time.Time{}, time.Time{}, nil

	dup, err := a.Store.InsertPost(ctx, row)
	if err != nil {
		return post.Row{}, err
	}
	var written []string
	rollback := func(cause error) (post.Row, error) {
		for _, p := range written {
			if err := a.Blobs.Delete(ctx, p); err != nil && !errors.Is(err, blob.ErrNotFound) {
				a.Log.WithError(err).WithField("path", p).Warn("rollback left blob behind")
			}
		}
		if err := a.Store.DeletePost(ctx, dup.ID); err != nil {
			a.Log.WithError(err).WithField("post", dup.ID).Warn("rollback left post behind")
		}
		return post.Row{}, cause
	}

	table := map[string]string{}
	dstPrefixes := postPrefixes(dup)
	for i, srcPrefix := range postPrefixes(src) {
		if i >= len(dstPrefixes) {
			break
		}
		dstPrefix := dstPrefixes[i]
		copied, err := blob.Copy(ctx, a.Blobs, srcPrefix, dstPrefix)
		written = append(written, copied...)
		if err != nil {
			return rollback(fmt.Errorf("copy media: %w", err))
		}
		for _, dst := range copied {
			old := srcPrefix + strings.TrimPrefix(dst, dstPrefix)
			table[asset.DirectURL(old)] = asset.DirectURL(dst)
			table[asset.ServingURL(old)] = asset.ServingURL(dst)
			// editors may keep the slug separator unescaped
			table[strings.ReplaceAll(asset.ServingURL(old), "%2F", "/")] = asset.ServingURL(dst)
		}
	}
	rw := document.NewRewriter(table)

	doc, err := loadArticle(ctx, a.Blobs, src)
	if err != nil {
		return rollback(err)
	}
	data, err := document.Encode(rw.Apply(doc))
	if err != nil {
		return rollback(err)
	}
	p := articlePath(dup.ID)
	if err := a.Blobs.Put(ctx, p, data, "application/json"); err != nil {
		return rollback(fmt.Errorf("store article: %w", err))
	}
	written = append(written, p)

	patch := post.Patch{BlobPath: &p}
	if cover := rw.String(src.ImageSrc); cover != src.ImageSrc {
		patch.ImageSrc = &cover
	}
	dup, err = a.Store.UpdatePost(ctx, dup.ID, patch)
	if err != nil {
		return rollback(err)
	}
	tags, err := a.Store.PostTags(ctx, src.ID)
	if err != nil {
		return rollback(err)
	}
	if _, err := a.Store.SetPostTags(ctx, dup.ID, tags); err != nil {
		return rollback(err)
	}
	return dup, nil
}

// copySlug returns "<slug>-copy", or the first free "<slug>-copy-N" for N >= 2.
func (a *App) copySlug(ctx context.Context, slug string) (string, error) {
	base := slug + "-copy"
	used, err := a.Store.SlugsWithPrefix(ctx, base)
	if err != nil {
		return "", err
	}
	taken := mapset.NewThreadUnsafeSet(used...)
	candidate := base
	for n := 2; taken.Contains(candidate); n++ {
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return candidate, nil
}

// articlePath is where a post's article tree is stored.
func articlePath(id int64) string {
	return fmt.Sprintf("posts/%d/article.json", id)
}

// postPrefixes are the blob prefixes owned by a post: uploads live under its
// id, imported media under its slug. A numeric slug could name another
// post's id prefix and is left out.
func postPrefixes(row post.Row) []string {
	prefixes := []string{fmt.Sprintf("posts/%d/", row.ID)}
	if _, err := strconv.ParseInt(row.Slug, 10, 64); err != nil && row.Slug != "" {
		prefixes = append(prefixes, "posts/"+row.Slug+"/")
	}
	return prefixes
}

func deletePrefix(ctx context.Context, blobs blob.Store, prefix string) error {
	items, err := blobs.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := blobs.Delete(ctx, it.Pathname); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return err
		}
	}
	return nil
}

// importedDefinition is the response shape of a freshly imported post.
func (a *App) importedDefinition(imp archive.Imported, owner *User) (post.Definition, error) {
	article, err := document.Encode(imp.Article)
	if err != nil {
		return post.Definition{}, err
	}
	var author *post.Author
	if owner != nil {
		author = owner.Author()
	}
	return imp.Row.Definition(article, imp.Tags, author), nil
}
