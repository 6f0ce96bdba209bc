package postkit

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/labstack/echo/v4"

	"github.com/eringen/postkit/archive"
	"github.com/eringen/postkit/post"
)

const (
	formatZip  = "zip"
	formatJSON = "json"
)

type batchExportRequest struct {
	Identifiers   []string `json:"identifiers"`
	Format        string   `json:"format"`
	IncludeAssets *bool    `json:"includeAssets"`
}

type batchExportJSON struct {
	ExportedAt string            `json:"exportedAt"`
	Count      int               `json:"count"`
	Posts      []post.Definition `json:"posts"`
}

// handleExport exports one post as a zip, or as JSON with ?format=json.
func (a *App) handleExport(c echo.Context) error {
	ctx := c.Request().Context()
	format, err := exportFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}
	includeAssets := true
	if v := c.QueryParam("assets"); v != "" {
		if includeAssets, err = strconv.ParseBool(v); err != nil {
			return post.Invalid("assets", "must be true or false")
		}
	}
	defs, err := a.exportDefinitions(ctx, Viewer(c), []string{c.Param("identifier")})
	if err != nil {
		return err
	}
	def := defs[0]
	if format == formatJSON {
		return c.JSON(http.StatusOK, archive.PostFile{ExportedAt: archive.FormatTime(time.Now()), Post: def})
	}
	arc, err := a.builder(includeAssets).Single(ctx, def)
	if err != nil {
		return err
	}
	return a.sendArchive(c, arc, def.Slug+"-export.zip")
}

// handleBatchExport exports several posts into one archive. Every
// identifier must resolve to a post the viewer may export.
func (a *App) handleBatchExport(c echo.Context) error {
	ctx := c.Request().Context()
	var req batchExportRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	format, err := exportFormat(req.Format)
	if err != nil {
		return err
	}
	ids := FilterEmpty(req.Identifiers)
	if len(ids) == 0 {
		return post.Invalid("identifiers", "must not be empty")
	}
	defs, err := a.exportDefinitions(ctx, Viewer(c), ids)
	if err != nil {
		return err
	}
	now := time.Now()
	if format == formatJSON {
		return c.JSON(http.StatusOK, batchExportJSON{
			ExportedAt: archive.FormatTime(now),
			Count:      len(defs),
			Posts:      defs,
		})
	}
	includeAssets := req.IncludeAssets == nil || *req.IncludeAssets
	arc, err := a.builder(includeAssets).Batch(ctx, defs)
	if err != nil {
		return err
	}
	return a.sendArchive(c, arc, "posts-export-"+now.UTC().Format("20060102-150405")+".zip")
}

// exportDefinitions resolves identifiers in order, dropping duplicates of
// the same post.
func (a *App) exportDefinitions(ctx context.Context, viewer *User, identifiers []string) ([]post.Definition, error) {
	seen := mapset.NewThreadUnsafeSet[int64]()
	var defs []post.Definition
	for _, id := range identifiers {
		row, err := a.lookupPost(ctx, id)
		if err != nil {
			return nil, err
		}
		if !seen.Add(row.ID) {
			continue
		}
		if err := canView(viewer, row); err != nil {
			return nil, err
		}
		def, err := a.definition(ctx, row)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// sendArchive packs the whole archive before writing headers so packing
// errors still produce a proper error response.
func (a *App) sendArchive(c echo.Context, arc *archive.Archive, filename string) error {
	var buf bytes.Buffer
	if _, err := arc.WriteTo(&buf); err != nil {
		return fmt.Errorf("pack archive: %w", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	c.Response().Header().Set(echo.HeaderContentLength, strconv.Itoa(buf.Len()))
	return c.Stream(http.StatusOK, "application/zip", &buf)
}

func exportFormat(v string) (string, error) {
	switch v {
	case "", formatZip:
		return formatZip, nil
	case formatJSON:
		return formatJSON, nil
	}
	return "", post.Invalid("format", "must be zip or json")
}

// ExportArchive builds an archive as the administrator would download it:
// one identifier gives the single-post layout, several give a batch.
func (a *App) ExportArchive(ctx context.Context, identifiers []string, includeAssets bool) (*archive.Archive, error) {
	admin, err := a.Store.GetUser(ctx, AdminUserID)
	if err != nil {
		return nil, err
	}
	defs, err := a.exportDefinitions(ctx, &admin, identifiers)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, post.Invalid("identifiers", "must not be empty")
	}
	if len(identifiers) == 1 {
		return a.builder(includeAssets).Single(ctx, defs[0])
	}
	return a.builder(includeAssets).Batch(ctx, defs)
}
