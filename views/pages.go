package views

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/url"

	"github.com/a-h/templ"
)

// Default page components. Sites that want their own markup pass templ
// components with the same signatures instead.

func layout(meta PageMeta, site SiteConfig, ld string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := site.Name
		if meta.Title != "" {
			title = meta.Title + " | " + site.Name
		}
		if _, err := fmt.Fprintf(w, `<!doctype html><html lang="en"><head><meta charset="utf-8"/>`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"/><title>%s</title>`,
			html.EscapeString(title)); err != nil {
			return err
		}
		if meta.Description != "" {
			fmt.Fprintf(w, `<meta name="description" content="%s"/>`, html.EscapeString(meta.Description))
		}
		if meta.URL != "" {
			fmt.Fprintf(w, `<link rel="canonical" href="%s"/><meta property="og:url" content="%[1]s"/>`, html.EscapeString(meta.URL))
		}
		if meta.OGType != "" {
			fmt.Fprintf(w, `<meta property="og:type" content="%s"/>`, html.EscapeString(meta.OGType))
		}
		if ld != "" {
			fmt.Fprintf(w, `<script type="application/ld+json">%s</script>`, ld)
		}
		fmt.Fprintf(w, `<link rel="stylesheet" href="/public/styles.css"/></head><body><header><a href="/">%s</a></header><main>`,
			html.EscapeString(site.Name))
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func postList(posts []PostSummary) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		io.WriteString(w, `<ul class="posts">`)
		for _, p := range posts {
			fmt.Fprintf(w, `<li><a href="/p/%s/">%s</a>`, PathEscape(p.Slug), html.EscapeString(p.Name))
			if p.Date != "" {
				fmt.Fprintf(w, ` <time>%s</time>`, html.EscapeString(p.Date))
			}
			if p.Description != "" {
				fmt.Fprintf(w, `<p>%s</p>`, html.EscapeString(p.Description))
			}
			io.WriteString(w, `</li>`)
		}
		_, err := io.WriteString(w, `</ul>`)
		return err
	})
}

// Home lists published posts with tag filters.
func Home(page HomePage) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		io.WriteString(w, `<nav class="tags">`)
		for _, t := range page.Tags {
			fmt.Fprintf(w, `<a class="%s" href="/?tag=%s">%s</a>`,
				TagClass(t == page.ActiveTag), url.QueryEscape(t), html.EscapeString(t))
		}
		io.WriteString(w, `</nav>`)
		return postList(page.Posts).Render(ctx, w)
	})
	meta := PageMeta{Description: page.Site.Description, URL: buildURL(page.Site.URL), OGType: "website"}
	return layout(meta, page.Site, WebsiteJsonLD(page.Site), body)
}

// Post renders one post with its article and related posts.
func Post(page PostPage) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		fmt.Fprintf(w, `<article><h1>%s</h1>`, html.EscapeString(page.Post.Name))
		if src := safeURL(page.Post.ImageSrc); src != "" {
			fmt.Fprintf(w, `<img class="cover" src="%s" alt="%s"/>`, src, html.EscapeString(page.Post.ImageAlt))
		}
		if err := Article(page.Article).Render(ctx, w); err != nil {
			return err
		}
		io.WriteString(w, `</article>`)
		if len(page.Related) > 0 {
			io.WriteString(w, `<aside><h2>Related</h2>`)
			if err := postList(page.Related).Render(ctx, w); err != nil {
				return err
			}
			io.WriteString(w, `</aside>`)
		}
		return nil
	})
	meta := PageMeta{
		Title:       page.Post.Name,
		Description: page.Post.Description,
		URL:         PostURL(page.Site, page.Post.Slug),
		OGType:      "article",
	}
	return layout(meta, page.Site, BlogPostingJsonLD(page.Site, page.Post), body)
}

// AdminLogin is the password form.
func AdminLogin(site SiteConfig, showError bool, csrfToken string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		io.WriteString(w, `<form method="post" action="/admin/login/">`)
		if showError {
			io.WriteString(w, `<p class="error">Wrong password.</p>`)
		}
		fmt.Fprintf(w, `<input type="hidden" name="_csrf" value="%s"/>`, html.EscapeString(csrfToken))
		_, err := io.WriteString(w, `<input type="password" name="password" autofocus/><button>Log in</button></form>`)
		return err
	})
	return layout(PageMeta{Title: "Login"}, site, "", body)
}

// AdminDashboard lists every post with its status.
func AdminDashboard(page DashboardPage) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if page.Message != "" {
			fmt.Fprintf(w, `<p class="message">%s</p>`, html.EscapeString(page.Message))
		}
		io.WriteString(w, `<table><thead><tr><th>Title</th><th>Status</th><th>Updated</th></tr></thead><tbody>`)
		for _, p := range page.Posts {
			fmt.Fprintf(w, `<tr><td><a href="/p/%s/">%s</a></td><td>%s</td><td>%s</td></tr>`,
				PathEscape(p.Slug), html.EscapeString(p.Name), html.EscapeString(p.Status), html.EscapeString(p.Date))
		}
		io.WriteString(w, `</tbody></table>`)
		fmt.Fprintf(w, `<form method="post" action="/admin/logout/"><input type="hidden" name="_csrf" value="%s"/>`, html.EscapeString(page.CSRFToken))
		_, err := io.WriteString(w, `<button>Log out</button></form>`)
		return err
	})
	return layout(PageMeta{Title: "Dashboard"}, page.Site, "", body)
}

// NotFound is the 404 page.
func NotFound(site SiteConfig) templ.Component {
	return layout(PageMeta{Title: "Not found"}, site, "", templ.Raw(`<h1>Not found</h1><p><a href="/">Back home</a></p>`))
}

// ServerError is the 500 page.
func ServerError(site SiteConfig) templ.Component {
	return layout(PageMeta{Title: "Error"}, site, "", templ.Raw(`<h1>Something went wrong</h1>`))
}
