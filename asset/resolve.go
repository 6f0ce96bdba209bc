// Package asset resolves media references found in articles to storage
// paths, fetches their bytes, and assigns collision-free names.
package asset

import (
	"net/url"
	"path"
	"strings"
)

// Categories whose direct paths map one-to-one onto blob storage.
var categories = map[string]bool{
	"posts":    true,
	"projects": true,
	"users":    true,
}

const servingPrefix = "/images/"

// Resolve maps a reference to its canonical storage path
// "<category>/<slug...>/<filename>". It reports false for external
// references, which can only be fetched over HTTP.
//
// Two internal shapes are recognized and normalize to the same path:
//
//	/images/<filename>?relatedTo=<category>&slug=<slug>
//	/<category>/<slug...>/<filename>
//
// Fully qualified URLs are reduced to their path and query first.
func Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	p := u.Path
	switch {
	case strings.HasPrefix(p, servingPrefix):
		filename := path.Base(p)
		q := u.Query()
		relatedTo := strings.Trim(q.Get("relatedTo"), "/")
		if relatedTo == "" || filename == "" || filename == "/" || filename == "images" {
			return "", false
		}
		return canonical(relatedTo, strings.Trim(q.Get("slug"), "/"), filename)
	case strings.HasPrefix(p, "/"):
		segs := splitPath(p)
		if len(segs) < 2 || !categories[segs[0]] {
			return "", false
		}
		return canonical(segs...)
	default:
		return "", false
	}
}

// canonical joins the non-empty parts and rejects anything that would
// escape the category.
func canonical(parts ...string) (string, bool) {
	var segs []string
	for _, part := range parts {
		segs = append(segs, splitPath(part)...)
	}
	if len(segs) < 2 {
		return "", false
	}
	for _, s := range segs {
		if s == "." || s == ".." {
			return "", false
		}
	}
	return strings.Join(segs, "/"), true
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DirectURL returns the direct-path reference for a canonical path.
func DirectURL(canonicalPath string) string {
	return "/" + strings.TrimPrefix(canonicalPath, "/")
}

// ServingURL returns the serving-endpoint reference for a canonical path,
// splitting it into category, slug and filename.
func ServingURL(canonicalPath string) string {
	segs := splitPath(canonicalPath)
	if len(segs) < 2 {
		return DirectURL(canonicalPath)
	}
	q := url.Values{}
	q.Set("relatedTo", segs[0])
	if slug := strings.Join(segs[1:len(segs)-1], "/"); slug != "" {
		q.Set("slug", slug)
	}
	return servingPrefix + url.PathEscape(segs[len(segs)-1]) + "?" + q.Encode()
}

// Basename returns the last path element of a reference with any query or
// fragment stripped, or "" when there is none.
func Basename(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	segs := splitPath(p)
	if len(segs) == 0 {
		return ""
	}
	base := segs[len(segs)-1]
	if base == "." || base == ".." {
		return ""
	}
	return base
}
