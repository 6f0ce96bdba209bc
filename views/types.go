package views

import "github.com/eringen/postkit/document"

// SiteConfig holds the site-wide settings every page needs.
type SiteConfig struct {
	Name        string
	URL         string
	Description string
	Author      string
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}

// PostSummary is the list view of a post.
type PostSummary struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Date        string
	Status      string
	Tags        []string
	ImageSrc    string
	ImageAlt    string
}

// HomePage is the published post list, optionally filtered by tag.
type HomePage struct {
	Site      SiteConfig
	Posts     []PostSummary
	Tags      []string
	ActiveTag string
}

// PostPage is a single rendered post.
type PostPage struct {
	Site    SiteConfig
	Post    PostSummary
	Article *document.Node
	Related []PostSummary
}

// DashboardPage lists every post for the administrator.
type DashboardPage struct {
	Site      SiteConfig
	Posts     []PostSummary
	Message   string
	CSRFToken string
}
