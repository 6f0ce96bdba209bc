package views

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/postkit/document"
)

// Article renders an article tree as HTML. Unknown node types render their
// children only, and URLs with unsafe schemes are dropped.
func Article(doc *document.Node) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		r := &articleRenderer{buf: &buf}
		if doc != nil {
			r.node(doc)
		}
		_, err := w.Write(buf.Bytes())
		return err
	})
}

type articleRenderer struct {
	buf    *bytes.Buffer
	images int
}

func (r *articleRenderer) children(n *document.Node) {
	for _, c := range n.Content {
		r.node(c)
	}
}

func (r *articleRenderer) wrap(tag string, n *document.Node) {
	r.buf.WriteString("<" + tag + ">")
	r.children(n)
	r.buf.WriteString("</" + tag + ">")
}

func (r *articleRenderer) node(n *document.Node) {
	switch n.Type {
	case "text":
		r.text(n)
	case "paragraph":
		r.wrap("p", n)
	case "heading":
		level := intAttr(n, "level", 2)
		if level < 1 || level > 6 {
			level = 2
		}
		r.wrap(fmt.Sprintf("h%d", level), n)
	case "bulletList":
		r.wrap("ul", n)
	case "orderedList":
		r.wrap("ol", n)
	case "listItem":
		r.wrap("li", n)
	case "blockquote":
		r.wrap("blockquote", n)
	case "codeBlock":
		r.buf.WriteString("<pre><code")
		if lang := stringAttr(n, "language"); lang != "" {
			r.buf.WriteString(` class="language-` + html.EscapeString(lang) + `"`)
		}
		r.buf.WriteString(">")
		r.children(n)
		r.buf.WriteString("</code></pre>")
	case "horizontalRule":
		r.buf.WriteString("<hr/>")
	case "hardBreak":
		r.buf.WriteString("<br/>")
	case document.TypeImage:
		r.image(stringAttr(n, "src"), stringAttr(n, "alt"), stringAttr(n, "title"))
	case document.TypeImageGallery:
		r.gallery(n)
	case document.TypeVideo:
		r.media("video", n)
	case document.TypeAudio:
		r.media("audio", n)
	default:
		r.children(n)
	}
}

func (r *articleRenderer) text(n *document.Node) {
	var open, closing []string
	for _, m := range n.Marks {
		var tag, attrs string
		switch m.Type {
		case "bold":
			tag = "strong"
		case "italic":
			tag = "em"
		case "code":
			tag = "code"
		case "strike":
			tag = "s"
		case "underline":
			tag = "u"
		case "link":
			href, _ := m.Attrs["href"].(string)
			href = safeURL(href)
			if href == "" {
				continue
			}
			tag = "a"
			attrs = ` href="` + href + `"`
			if target, _ := m.Attrs["target"].(string); target == "_blank" {
				attrs += ` target="_blank" rel="noopener noreferrer"`
			}
		default:
			continue
		}
		open = append(open, "<"+tag+attrs+">")
		closing = append([]string{"</" + tag + ">"}, closing...)
	}
	r.buf.WriteString(strings.Join(open, ""))
	r.buf.WriteString(html.EscapeString(n.Text))
	r.buf.WriteString(strings.Join(closing, ""))
}

func (r *articleRenderer) image(src, alt, title string) {
	src = safeURL(src)
	if src == "" {
		return
	}
	r.images++
	loadAttr := `loading="lazy"`
	if r.images == 1 {
		loadAttr = `fetchpriority="high"`
	}
	r.buf.WriteString(`<img ` + loadAttr + ` src="` + src + `" alt="` + html.EscapeString(alt) + `"`)
	if title != "" {
		r.buf.WriteString(` title="` + html.EscapeString(title) + `"`)
	}
	r.buf.WriteString(` decoding="async"/>`)
}

func (r *articleRenderer) gallery(n *document.Node) {
	images, _ := n.Attrs["images"].([]any)
	r.buf.WriteString(`<div class="gallery">`)
	for _, img := range images {
		m, ok := img.(map[string]any)
		if !ok {
			continue
		}
		src, _ := m["src"].(string)
		alt, _ := m["alt"].(string)
		r.image(src, alt, "")
	}
	r.buf.WriteString(`</div>`)
}

func (r *articleRenderer) media(tag string, n *document.Node) {
	src := safeURL(stringAttr(n, "src"))
	if src == "" {
		return
	}
	r.buf.WriteString("<" + tag + ` controls preload="metadata" src="` + src + `"`)
	if poster := safeURL(stringAttr(n, "poster")); poster != "" && tag == "video" {
		r.buf.WriteString(` poster="` + poster + `"`)
	}
	r.buf.WriteString("></" + tag + ">")
}

func stringAttr(n *document.Node, key string) string {
	s, _ := n.Attrs[key].(string)
	return s
}

func intAttr(n *document.Node, key string, fallback int) int {
	switch v := n.Attrs[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	case float64:
		return int(v)
	}
	return fallback
}

// safeURL returns an attribute-escaped URL, or "" for schemes that could
// run script.
func safeURL(raw string) string {
	val := strings.TrimSpace(raw)
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
