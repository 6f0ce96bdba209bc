package postkit

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/postkit/asset"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	AtomNS  string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Self          atomLink  `xml:"atom:link"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	Description string        `xml:"description"`
	PubDate     string        `xml:"pubDate,omitempty"`
	GUID        string        `xml:"guid"`
	Categories  []string      `xml:"category"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
}

// rssEnclosure leaves Length at 0 since the size is not known without
// reading the blob.
type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int    `xml:"length,attr"`
}

// renderSitemap lists the home page, one entry per tag filter and every
// published post.
func (a *App) renderSitemap(c echo.Context, posts []PublishedPost, tags []string) error {
	base := a.Config.URL
	home := homeURL(base)
	urls := make([]sitemapURL, 0, len(posts)+len(tags)+1)
	urls = append(urls, sitemapURL{Loc: home})
	for _, t := range tags {
		urls = append(urls, sitemapURL{Loc: home + "?tag=" + url.QueryEscape(t)})
	}
	for _, p := range posts {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "p", p.Slug),
			LastMod: p.UpdatedAt.UTC().Format(time.DateOnly),
		})
	}
	return writeXML(c, "application/xml; charset=utf-8", sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	})
}

// renderRSS writes an RSS 2.0 feed of the published posts. Covers stored in
// the blob store become enclosures with absolute URLs.
func (a *App) renderRSS(c echo.Context, posts []PublishedPost) error {
	base := a.Config.URL
	ch := rssChannel{
		Title:       a.Config.Name,
		Link:        homeURL(base),
		Description: a.Config.Description,
		Self: atomLink{
			Href: homeURL(base) + "feed.xml",
			Rel:  "self",
			Type: "application/rss+xml",
		},
		Items: make([]rssItem, 0, len(posts)),
	}
	var newest time.Time
	for _, p := range posts {
		link := BuildURL(base, "p", p.Slug)
		item := rssItem{
			Title:       p.Name,
			Link:        link,
			Description: p.Description,
			GUID:        link,
			Categories:  p.Tags,
		}
		if p.PublishedAt != nil {
			item.PubDate = p.PublishedAt.UTC().Format(time.RFC1123Z)
			if p.PublishedAt.After(newest) {
				newest = *p.PublishedAt
			}
		}
		if cover, ok := asset.Resolve(p.ImageSrc); ok {
			item.Enclosure = &rssEnclosure{
				URL:  strings.TrimSuffix(homeURL(base), "/") + asset.DirectURL(cover),
				Type: asset.GuessContentType(cover),
			}
		}
		ch.Items = append(ch.Items, item)
	}
	if !newest.IsZero() {
		ch.LastBuildDate = newest.UTC().Format(time.RFC1123Z)
	}
	return writeXML(c, "application/rss+xml; charset=utf-8", rssFeed{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: ch,
	})
}

// homeURL is base with exactly one trailing slash.
func homeURL(base string) string {
	return strings.TrimRight(base, "/") + "/"
}

func writeXML(c echo.Context, contentType string, v any) error {
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(c.Response()).Encode(v)
}
