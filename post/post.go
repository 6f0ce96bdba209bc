// Package post defines the exchanged and persisted shapes of a blog post,
// along with slug generation, validation, and payload normalization.
package post

import (
	"encoding/json"
	"time"
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// DefaultLanguage is used when a definition carries no language.
const DefaultLanguage = "en"

// Tag is a post tag as exchanged in definitions and API responses.
type Tag struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// Image is a cover image reference.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Author is the owner summary attached to exported posts.
type Author struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Slug   string `json:"slug,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Definition is the portable post shape. Export fills every field; import
// only reads the content fields and always creates a fresh row.
type Definition struct {
	ID          int64           `json:"id,omitempty"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug,omitempty"`
	Description string          `json:"description"`
	Tags        []Tag           `json:"tags"`
	Image       *Image          `json:"image,omitempty"`
	Article     json.RawMessage `json:"article,omitempty"`
	Language    string          `json:"language,omitempty"`
	Status      Status          `json:"status,omitempty"`
	Links       json.RawMessage `json:"links,omitempty"`
	BlobPath    string          `json:"blobPath,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
	PublishedAt string          `json:"publishedAt,omitempty"`
	User        *Author         `json:"user,omitempty"`
}

// CoverSrc returns the cover image src, or "" when there is none.
func (d Definition) CoverSrc() string {
	if d.Image == nil {
		return ""
	}
	return d.Image.Src
}

// Row is a post as persisted by the row store.
type Row struct {
	ID          int64
	UserID      int64
	Name        string
	Slug        string
	Description string
	ImageSrc    string
	ImageAlt    string
	Language    string
	Links       string
	BlobPath    string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// NewRow builds the row a definition would be inserted as, applying the
// import defaults. The slug is left for the caller to assign.
func NewRow(d Definition, userID int64) Row {
	row := Row{
		UserID:      userID,
		Name:        d.Name,
		Description: d.Description,
		Language:    d.Language,
		Links:       "[]",
		Status:      d.Status,
	}
	if row.Language == "" {
		row.Language = DefaultLanguage
	}
	if row.Status == "" {
		row.Status = StatusDraft
	}
	if len(d.Links) > 0 && json.Valid(d.Links) && d.Links[0] == '[' {
		row.Links = string(d.Links)
	}
	if d.Image != nil {
		row.ImageSrc = d.Image.Src
		row.ImageAlt = d.Image.Alt
	}
	return row
}

// Definition converts a row into its exchanged shape. The article and tags
// are supplied by the caller since they live outside the row.
func (r Row) Definition(article json.RawMessage, tags []Tag, author *Author) Definition {
	d := Definition{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		Tags:        tags,
		Article:     article,
		Language:    r.Language,
		Status:      r.Status,
		BlobPath:    r.BlobPath,
		User:        author,
	}
	if d.Tags == nil {
		d.Tags = []Tag{}
	}
	if r.Links != "" && json.Valid([]byte(r.Links)) {
		d.Links = json.RawMessage(r.Links)
	}
	if r.ImageSrc != "" || r.ImageAlt != "" {
		d.Image = &Image{Src: r.ImageSrc, Alt: r.ImageAlt}
	}
	d.CreatedAt = formatTime(r.CreatedAt)
	d.UpdatedAt = formatTime(r.UpdatedAt)
	if r.PublishedAt != nil {
		d.PublishedAt = formatTime(*r.PublishedAt)
	}
	return d
}

// Patch is a partial update of a row. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Slug        *string
	Description *string
	ImageSrc    *string
	ImageAlt    *string
	Language    *string
	Links       *string
	BlobPath    *string
	Status      *Status
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Slug == nil && p.Description == nil &&
		p.ImageSrc == nil && p.ImageAlt == nil && p.Language == nil &&
		p.Links == nil && p.BlobPath == nil && p.Status == nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// String returns a pointer to s, for building patches.
func String(s string) *string {
	return &s
}
