package postkit

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/postkit/views"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(a.siteView(), false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setSessionUser(c, AdminUserID); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	a.Log.WithField("ip", ip).Warn("failed admin login")
	return RenderStatus(c, http.StatusUnauthorized, a.Views.AdminLogin(a.siteView(), true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	rows, err := a.Store.ListPosts(c.Request().Context(), ListFilter{})
	if err != nil {
		return err
	}
	posts := make([]views.PostSummary, len(rows))
	for i, r := range rows {
		posts[i] = summarize(PublishedPost{Row: r})
		posts[i].Date = r.UpdatedAt.Format("2006-01-02")
	}
	return Render(c, a.Views.AdminDashboard(views.DashboardPage{
		Site:      a.siteView(),
		Posts:     posts,
		Message:   msg,
		CSRFToken: CsrfToken(c),
	}))
}
