package postkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eringen/postkit/post"
)

// PublishedPost is a published row with its tag names, as listed on public
// pages.
type PublishedPost struct {
	post.Row
	Tags []string
}

// HasTag reports whether the post carries tag, ignoring case.
func (p PublishedPost) HasTag(tag string) bool {
	tag = normalizeTag(tag)
	for _, t := range p.Tags {
		if normalizeTag(t) == tag {
			return true
		}
	}
	return false
}

// PostCache is an in-memory cache of published posts and tags with TTL.
type PostCache struct {
	mu      sync.RWMutex
	posts   []PublishedPost
	tags    []string
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s *Store, ttl time.Duration) *PostCache {
	return &PostCache{store: s, ttl: ttl}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.tags = nil
	c.mu.Unlock()
}

func (c *PostCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	rows, err := c.store.ListPosts(ctx, ListFilter{Status: post.StatusPublished})
	if err != nil {
		return err
	}
	posts := make([]PublishedPost, 0, len(rows))
	for _, r := range rows {
		tags, err := c.store.PostTags(ctx, r.ID)
		if err != nil {
			return err
		}
		names := make([]string, len(tags))
		for i, t := range tags {
			names[i] = t.Name
		}
		posts = append(posts, PublishedPost{Row: r, Tags: names})
	}
	tags, err := c.store.ListTags(ctx)
	if err != nil {
		return err
	}
	c.posts = posts
	c.tags = tags
	c.fetched = time.Now()
	return nil
}

// ensureLoaded returns cached posts and tags after ensuring the cache is fresh.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]PublishedPost, []string, error) {
	c.mu.RLock()
	if c.valid() {
		posts, tags := c.posts, c.tags
		c.mu.RUnlock()
		return posts, tags, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	return c.posts, c.tags, nil
}

// ListPosts returns published posts, optionally filtered by tag.
func (c *PostCache) ListPosts(ctx context.Context, tag string) ([]PublishedPost, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if normalizeTag(tag) == "" {
		return posts, nil
	}
	var filtered []PublishedPost
	for _, p := range posts {
		if p.HasTag(tag) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// ListTags returns all tags used by published posts.
func (c *PostCache) ListTags(ctx context.Context) ([]string, error) {
	_, tags, err := c.ensureLoaded(ctx)
	return tags, err
}

// GetPost returns a single published post by slug from the cache.
func (c *PostCache) GetPost(ctx context.Context, slug string) (PublishedPost, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return PublishedPost{}, err
	}
	for _, p := range posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return PublishedPost{}, fmt.Errorf("post %q: %w", slug, ErrNotFound)
}
