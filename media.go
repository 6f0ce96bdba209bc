package postkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	_ "golang.org/x/image/webp"

	"github.com/eringen/postkit/asset"
	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/post"
)

const (
	maxImageSize = 10 << 20  // 10MB
	maxVideoSize = 100 << 20 // 100MB
)

var imageFormats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
}

// uploadedAsset is a stored upload as returned by the media API.
type uploadedAsset struct {
	PostAsset
	URL    string         `json:"url"`
	Poster *uploadedAsset `json:"poster,omitempty"`
}

func newUploadedAsset(a PostAsset) uploadedAsset {
	return uploadedAsset{PostAsset: a, URL: asset.ServingURL(a.Pathname)}
}

// editablePost loads the post named by the :identifier param and checks the
// viewer may change it.
func (a *App) editablePost(c echo.Context) (post.Row, error) {
	row, err := a.lookupPost(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		return post.Row{}, err
	}
	return row, canEdit(Viewer(c), row)
}

func (a *App) handleUploadImage(c echo.Context) error {
	row, err := a.editablePost(c)
	if err != nil {
		return err
	}
	ctx, id := a.uploads.Start(c.Request().Context(), c.Request().Header.Get(UploadIDHeader), "image")
	defer a.uploads.Finish(id)
	c.Response().Header().Set(UploadIDHeader, id)

	fh, err := c.FormFile("file")
	if err != nil {
		return post.Invalid("file", "an image file is required")
	}
	stored, err := a.storeImage(ctx, id, row.ID, fh, AssetImage, "")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, stored)
}

func (a *App) handleUploadVideo(c echo.Context) error {
	row, err := a.editablePost(c)
	if err != nil {
		return err
	}
	ctx, id := a.uploads.Start(c.Request().Context(), c.Request().Header.Get(UploadIDHeader), "video")
	defer a.uploads.Finish(id)
	c.Response().Header().Set(UploadIDHeader, id)

	fh, err := c.FormFile("file")
	if err != nil {
		return post.Invalid("file", "a video file is required")
	}
	ext := strings.ToLower(path.Ext(fh.Filename))
	contentType, ok := videoTypes[ext]
	if !ok {
		return post.Invalid("file", "must be an mp4, webm or ogg video")
	}
	data, err := readFormFile(fh, maxVideoSize)
	if err != nil {
		return err
	}
	a.uploads.Update(id, func(p *UploadProgress) { p.Step = "storing"; p.Total = 1 })

	p, err := a.uploadPath(ctx, row.ID, "videos", fh.Filename, "")
	if err != nil {
		return err
	}
	if err := a.Blobs.Put(ctx, p, data, contentType); err != nil {
		return fmt.Errorf("store video: %w", err)
	}
	rec, err := a.Store.AddPostAsset(ctx, PostAsset{
		PostID:      row.ID,
		Pathname:    p,
		Kind:        AssetVideo,
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		return err
	}
	out := newUploadedAsset(rec)

	if ph, err := c.FormFile("poster"); err == nil {
		poster, err := a.storeImage(ctx, id, row.ID, ph, AssetPoster, "poster-")
		if err != nil {
			return err
		}
		out.Poster = &poster
	} else if !errors.Is(err, http.ErrMissingFile) {
		return err
	}
	a.uploads.Update(id, func(p *UploadProgress) { p.Step = "done"; p.Done = 1 })
	return c.JSON(http.StatusCreated, out)
}

// storeImage validates an uploaded image, stores it under
// posts/<id>/images/ and records it.
func (a *App) storeImage(ctx context.Context, uploadID string, postID int64, fh *multipart.FileHeader, kind, prefix string) (uploadedAsset, error) {
	data, err := readFormFile(fh, maxImageSize)
	if err != nil {
		return uploadedAsset{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return uploadedAsset{}, post.Invalid("file", "not a readable image")
	}
	contentType, ok := imageFormats[format]
	if !ok {
		return uploadedAsset{}, post.Invalid("file", "must be a png, jpeg, gif or webp image")
	}
	a.uploads.Update(uploadID, func(p *UploadProgress) { p.Step = "storing"; p.Total = 1 })

	p, err := a.uploadPath(ctx, postID, "images", fh.Filename, prefix)
	if err != nil {
		return uploadedAsset{}, err
	}
	if err := a.Blobs.Put(ctx, p, data, contentType); err != nil {
		return uploadedAsset{}, fmt.Errorf("store image: %w", err)
	}
	rec, err := a.Store.AddPostAsset(ctx, PostAsset{
		PostID:      postID,
		Pathname:    p,
		Kind:        kind,
		ContentType: contentType,
		Size:        int64(len(data)),
		Width:       cfg.Width,
		Height:      cfg.Height,
	})
	if err != nil {
		return uploadedAsset{}, err
	}
	a.uploads.Update(uploadID, func(p *UploadProgress) { p.Done = 1 })
	return newUploadedAsset(rec), nil
}

// uploadPath returns a free posts/<id>/<kind>/<unix>-<name> path.
func (a *App) uploadPath(ctx context.Context, postID int64, kind, filename, prefix string) (string, error) {
	dir := fmt.Sprintf("posts/%d/%s/", postID, kind)
	items, err := a.Blobs.List(ctx, dir)
	if err != nil {
		return "", err
	}
	names := asset.NewNameSet()
	for _, it := range items {
		names.Reserve(strings.TrimPrefix(it.Pathname, dir))
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().Unix(), prefix, asset.SafeFilename(filename))
	return dir + names.Reserve(name), nil
}

func readFormFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, post.Invalid("file", fmt.Sprintf("must be at most %d MB", limit>>20))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, post.Invalid("file", fmt.Sprintf("must be at most %d MB", limit>>20))
	}
	return data, nil
}

func (a *App) handleListImages(c echo.Context) error {
	row, err := a.editablePost(c)
	if err != nil {
		return err
	}
	recs, err := a.Store.ListPostAssets(c.Request().Context(), row.ID)
	if err != nil {
		return err
	}
	out := make([]uploadedAsset, 0, len(recs))
	for _, r := range recs {
		if r.Kind == AssetVideo {
			continue
		}
		out = append(out, newUploadedAsset(r))
	}
	return c.JSON(http.StatusOK, map[string]any{"images": out, "count": len(out)})
}

func (a *App) handleDeleteImage(c echo.Context) error {
	ctx := c.Request().Context()
	row, err := a.editablePost(c)
	if err != nil {
		return err
	}
	pathname := c.QueryParam("pathname")
	if resolved, ok := asset.Resolve(pathname); ok {
		pathname = resolved
	}
	if err := blob.ValidatePath(pathname); err != nil || !strings.HasPrefix(pathname, fmt.Sprintf("posts/%d/", row.ID)) {
		return post.Invalid("pathname", "must name a file of this post")
	}
	blobErr := a.Blobs.Delete(ctx, pathname)
	if blobErr != nil && !errors.Is(blobErr, blob.ErrNotFound) {
		return blobErr
	}
	if err := a.Store.DeletePostAsset(ctx, row.ID, pathname); err != nil {
		// a row without a blob or a blob without a row still counts
		if !errors.Is(err, ErrNotFound) || blobErr != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}
