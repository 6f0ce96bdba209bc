package views

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PostURL is the public address of a post.
func PostURL(cfg SiteConfig, slug string) string {
	return buildURL(cfg.URL, "p", slug)
}

// FilterRelatedPosts returns the posts sharing a tag with current, ignoring
// case and surrounding space, at most maxRelated of them.
func FilterRelatedPosts(current PostSummary, posts []PostSummary) []PostSummary {
	want := mapset.NewThreadUnsafeSet[string]()
	for _, t := range current.Tags {
		if tag := strings.ToLower(strings.TrimSpace(t)); tag != "" {
			want.Add(tag)
		}
	}
	var related []PostSummary
	for _, p := range posts {
		if p.Slug == current.Slug || len(related) == maxRelated {
			continue
		}
		for _, t := range p.Tags {
			if want.Contains(strings.ToLower(strings.TrimSpace(t))) {
				related = append(related, p)
				break
			}
		}
	}
	return related
}

const maxRelated = 5

// PathEscape wraps url.PathEscape for use in templ expressions.
func PathEscape(s string) string {
	return url.PathEscape(s)
}

// TagClass returns CSS classes for a tag pill, with active variant.
func TagClass(active bool) string {
	base := "tag"
	if active {
		base += " tag-active"
	}
	return base
}

// JoinTags formats tags as a comma-separated list.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

type ldThing struct {
	Type string `json:"@type"`
	Name string `json:"name,omitempty"`
	ID   string `json:"@id,omitempty"`
}

type ldWebSite struct {
	Context     string   `json:"@context"`
	Type        string   `json:"@type"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Author      *ldThing `json:"author,omitempty"`
}

type ldBlogPosting struct {
	Context          string   `json:"@context"`
	Type             string   `json:"@type"`
	Headline         string   `json:"headline"`
	Description      string   `json:"description"`
	DatePublished    string   `json:"datePublished,omitempty"`
	URL              string   `json:"url"`
	Image            string   `json:"image,omitempty"`
	Keywords         string   `json:"keywords,omitempty"`
	Author           *ldThing `json:"author,omitempty"`
	Publisher        ldThing  `json:"publisher"`
	MainEntityOfPage ldThing  `json:"mainEntityOfPage"`
}

func ldPerson(name string) *ldThing {
	if name == "" {
		return nil
	}
	return &ldThing{Type: "Person", Name: name}
}

// WebsiteJsonLD is the schema.org WebSite block of the home page.
func WebsiteJsonLD(cfg SiteConfig) string {
	return marshalLD(ldWebSite{
		Context:     "https://schema.org",
		Type:        "WebSite",
		Name:        cfg.Name,
		URL:         strings.TrimRight(cfg.URL, "/") + "/",
		Description: cfg.Description,
		Author:      ldPerson(cfg.Author),
	})
}

// BlogPostingJsonLD is the schema.org BlogPosting block of a post page.
func BlogPostingJsonLD(cfg SiteConfig, post PostSummary) string {
	postURL := PostURL(cfg, post.Slug)
	return marshalLD(ldBlogPosting{
		Context:          "https://schema.org",
		Type:             "BlogPosting",
		Headline:         post.Name,
		Description:      post.Description,
		DatePublished:    post.Date,
		URL:              postURL,
		Image:            post.ImageSrc,
		Keywords:         JoinTags(post.Tags),
		Author:           ldPerson(cfg.Author),
		Publisher:        ldThing{Type: "Organization", Name: cfg.Name},
		MainEntityOfPage: ldThing{Type: "WebPage", ID: postURL},
	})
}

// marshalLD encodes v for a script tag; "<" is escaped so the block cannot
// close the tag early.
func marshalLD(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
