package postkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/postkit/archive"
	"github.com/eringen/postkit/post"
)

type importResponse struct {
	Posts    []post.Definition `json:"posts"`
	Count    int               `json:"count"`
	UploadID string            `json:"uploadId"`
}

// handleImport creates posts from an uploaded zip (multipart field "file")
// or from a JSON body. Progress is readable under /api/uploads/<id> while
// the import runs.
func (a *App) handleImport(c echo.Context) error {
	ip := c.RealIP()
	if !a.importLimiter.Allow(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many imports, try again later")
	}
	viewer := Viewer(c)

	ctx, id := a.uploads.Start(c.Request().Context(), c.Request().Header.Get(UploadIDHeader), "import")
	defer a.uploads.Finish(id)
	c.Response().Header().Set(UploadIDHeader, id)

	progress := func(p archive.Progress) {
		a.uploads.Update(id, func(u *UploadProgress) {
			u.Step = p.Step
			u.Name = p.Name
			u.Done = p.Index
			if p.Step == archive.StepDone {
				u.Done = p.Index + 1
			}
			u.Total = p.Total
		})
	}
	im := a.importer(progress)

	var res *archive.Result
	var err error
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		data, rerr := a.readUpload(c)
		if rerr != nil {
			return rerr
		}
		a.uploads.Update(id, func(u *UploadProgress) { u.Step = "unpacking" })
		arc, uerr := archive.Unpack(data, archive.WithMaxSize(a.Config.MaxImportSize))
		if uerr != nil {
			return uerr
		}
		res, err = im.ImportArchive(ctx, viewer.ID, arc)
	} else {
		body, rerr := io.ReadAll(io.LimitReader(c.Request().Body, a.Config.MaxImportSize+1))
		if rerr != nil {
			return rerr
		}
		if int64(len(body)) > a.Config.MaxImportSize {
			return fmt.Errorf("%w: body exceeds %d bytes", archive.ErrTooLarge, a.Config.MaxImportSize)
		}
		payload, derr := post.DecodePayload(body)
		if derr != nil {
			return derr
		}
		res, err = im.ImportPayload(ctx, viewer.ID, payload)
	}
	if res != nil && len(res.Posts) > 0 {
		a.Cache.Invalidate()
	}
	if err != nil {
		if res != nil && len(res.Posts) > 0 {
			a.Log.WithError(err).WithField("created", len(res.Posts)).Warn("import stopped after creating posts")
		}
		return err
	}

	a.Log.WithField("count", len(res.Posts)).WithField("user", viewer.ID).Info("imported posts")
	defs := make([]post.Definition, len(res.Posts))
	for i, imp := range res.Posts {
		if defs[i], err = a.importedDefinition(imp, viewer); err != nil {
			return err
		}
	}
	if !res.Batch {
		return c.JSON(http.StatusCreated, defs[0])
	}
	return c.JSON(http.StatusCreated, importResponse{Posts: defs, Count: len(defs), UploadID: id})
}

// readUpload returns the bytes of the "file" form field, refusing files over
// the import limit.
func (a *App) readUpload(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, post.Invalid("file", "a zip file is required")
	}
	if fh.Size > a.Config.MaxImportSize {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", archive.ErrTooLarge, a.Config.MaxImportSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, a.Config.MaxImportSize))
}

// ImportFile imports a zip archive or a JSON payload on behalf of owner.
func (a *App) ImportFile(ctx context.Context, owner int64, data []byte, fn archive.ProgressFunc) (*archive.Result, error) {
	im := a.importer(fn)
	var res *archive.Result
	var err error
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		arc, uerr := archive.Unpack(data, archive.WithMaxSize(a.Config.MaxImportSize))
		if uerr != nil {
			return nil, uerr
		}
		res, err = im.ImportArchive(ctx, owner, arc)
	} else {
		payload, derr := post.DecodePayload(data)
		if derr != nil {
			return nil, derr
		}
		res, err = im.ImportPayload(ctx, owner, payload)
	}
	if res != nil && len(res.Posts) > 0 {
		a.Cache.Invalidate()
	}
	return res, err
}
