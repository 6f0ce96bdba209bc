package postkit

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/postkit/asset"
)

// handleServeImage serves /images/<file>?relatedTo=<category>&slug=<slug>.
func (a *App) handleServeImage(c echo.Context) error {
	p, ok := asset.Resolve(c.Request().URL.RequestURI())
	if !ok {
		return echo.ErrNotFound
	}
	return a.serveBlob(c, p)
}

// handleServeBlob serves direct paths under /posts/.
func (a *App) handleServeBlob(c echo.Context) error {
	p, ok := asset.Resolve(c.Request().URL.EscapedPath())
	if !ok || !strings.HasPrefix(p, "posts/") {
		return echo.ErrNotFound
	}
	return a.serveBlob(c, p)
}

func (a *App) serveBlob(c echo.Context, p string) error {
	obj, err := a.Blobs.Get(c.Request().Context(), p)
	if err != nil {
		return err
	}
	ct := obj.ContentType
	if ct == "" || ct == asset.DefaultContentType {
		ct = asset.GuessContentType(p)
	}
	if strings.HasSuffix(p, ".svg") {
		// scripts in uploaded svgs must not run on this origin
		c.Response().Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	}
	return c.Blob(http.StatusOK, ct, obj.Data)
}
