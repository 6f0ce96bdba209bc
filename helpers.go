package postkit

import (
	"net/url"
	"path"
	"strings"

	"github.com/eringen/postkit/views"
)

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
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

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func summarize(p PublishedPost) views.PostSummary {
	s := views.PostSummary{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Status:      string(p.Status),
		Tags:        p.Tags,
		ImageSrc:    p.ImageSrc,
		ImageAlt:    p.ImageAlt,
	}
	if p.PublishedAt != nil {
		s.Date = p.PublishedAt.Format("2006-01-02")
	}
	return s
}

func summarizeAll(posts []PublishedPost) []views.PostSummary {
	out := make([]views.PostSummary, len(posts))
	for i, p := range posts {
		out[i] = summarize(p)
	}
	return out
}
