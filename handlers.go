package postkit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/postkit/views"
)

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	tag := c.QueryParam("tag")
	posts, err := a.Cache.ListPosts(ctx, tag)
	if err != nil {
		return err
	}
	tags, err := a.Cache.ListTags(ctx)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Home(views.HomePage{
		Site:      a.siteView(),
		Posts:     summarizeAll(posts),
		Tags:      tags,
		ActiveTag: tag,
	}))
}

func (a *App) handlePost(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := a.Cache.GetPost(ctx, c.Param("slug"))
	if err != nil {
		return err
	}
	doc, err := loadArticle(ctx, a.Blobs, p.Row)
	if err != nil {
		return err
	}
	posts, err := a.Cache.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	current := summarize(p)
	return Render(c, a.Views.Post(views.PostPage{
		Site:    a.siteView(),
		Post:    current,
		Article: doc,
		Related: views.FilterRelatedPosts(current, summarizeAll(posts)),
	}))
}

func (a *App) handleSitemap(c echo.Context) error {
	ctx := c.Request().Context()
	posts, err := a.Cache.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	tags, err := a.Cache.ListTags(ctx)
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts, tags)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	return c.File(a.staticDir + "/robots.txt")
}

func (a *App) handleUploadProgress(c echo.Context) error {
	p, ok := a.uploads.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no upload with this id")
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) handleCancelUpload(c echo.Context) error {
	if !a.uploads.Cancel(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "no upload with this id")
	}
	return c.NoContent(http.StatusNoContent)
}
