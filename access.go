package postkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/eringen/postkit/document"
	"github.com/eringen/postkit/post"
)

// canView reports whether viewer may read or export row. Published posts are
// public; anything else needs the owner or the administrator.
func canView(viewer *User, row post.Row) error {
	if row.Status == post.StatusPublished {
		return nil
	}
	return canEdit(viewer, row)
}

// canEdit reports whether viewer may change row.
func canEdit(viewer *User, row post.Row) error {
	switch {
	case viewer == nil:
		return ErrUnauthorized
	case viewer.IsAdmin(), viewer.ID == row.UserID:
		return nil
	}
	return fmt.Errorf("post %d: %w", row.ID, ErrForbidden)
}

// lookupPost finds a post by a possibly URL-encoded identifier.
func (a *App) lookupPost(ctx context.Context, identifier string) (post.Row, error) {
	if decoded, err := url.PathUnescape(identifier); err == nil {
		identifier = decoded
	}
	return a.Store.GetPost(ctx, identifier)
}

// definition assembles the exchanged shape of row with its article, tags
// and owner.
func (a *App) definition(ctx context.Context, row post.Row) (post.Definition, error) {
	doc, err := loadArticle(ctx, a.Blobs, row)
	if err != nil {
		return post.Definition{}, fmt.Errorf("load article of post %d: %w", row.ID, err)
	}
	article, err := document.Encode(doc)
	if err != nil {
		return post.Definition{}, err
	}
	tags, err := a.Store.PostTags(ctx, row.ID)
	if err != nil {
		return post.Definition{}, err
	}
	var author *post.Author
	owner, err := a.Store.GetUser(ctx, row.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return post.Definition{}, err
	default:
		author = owner.Author()
	}
	return row.Definition(article, tags, author), nil
}
