package postkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/eringen/postkit/archive"
	"github.com/eringen/postkit/migrations"
	"github.com/eringen/postkit/post"
)

// AdminUserID is the seeded administrator account.
const AdminUserID int64 = 1

// timeLayout is how timestamps are stored in TEXT columns.
const timeLayout = time.RFC3339Nano

// User is an account that owns posts.
type User struct {
	ID     int64
	Name   string
	Slug   string
	Avatar string
}

// Author returns the summary attached to exported posts.
func (u User) Author() *post.Author {
	return &post.Author{ID: u.ID, Name: u.Name, Slug: u.Slug, Avatar: u.Avatar}
}

// IsAdmin reports whether u is the administrator.
func (u *User) IsAdmin() bool {
	return u != nil && u.ID == AdminUserID
}

// Asset kinds recorded in post_assets.
const (
	AssetImage  = "image"
	AssetVideo  = "video"
	AssetPoster = "poster"
)

// PostAsset is an uploaded media file attached to a post.
type PostAsset struct {
	ID          int64     `json:"id"`
	PostID      int64     `json:"postId"`
	Pathname    string    `json:"pathname"`
	Kind        string    `json:"kind"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListFilter narrows ListPosts. Zero fields match everything.
type ListFilter struct {
	Status post.Status
	Tag    string
	UserID int64
}

// Store wraps a SQLite database and provides the post, tag, user and asset
// queries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ archive.RowStore = (*Store)(nil)

// OpenDB opens (or creates) the SQLite database at path with the connection
// settings every caller needs. It does not migrate.
func OpenDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// foreign_keys and busy_timeout are per connection, so they go in the DSN.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// WAL allows concurrent readers while one writer works; synchronous=NORMAL
	// is safe with WAL.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
		PRAGMA mmap_size=268435456;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	return db, nil
}

// NewStore opens the database at path and applies pending migrations.
func NewStore(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

const postColumns = `id, user_id, name, slug, description, image_src, image_alt, language, links, blob_path, status, created_at, updated_at, published_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(sc scanner) (post.Row, error) {
	var r post.Row
	var status, created, updated string
	var published sql.NullString
	err := sc.Scan(&r.ID, &r.UserID, &r.Name, &r.Slug, &r.Description, &r.ImageSrc, &r.ImageAlt,
		&r.Language, &r.Links, &r.BlobPath, &status, &created, &updated, &published)
	if err != nil {
		return post.Row{}, err
	}
	r.Status = post.Status(status)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	if published.Valid && published.String != "" {
		t := parseTime(published.String)
		r.PublishedAt = &t
	}
	return r, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetPost resolves an identifier as a numeric id, then an exact slug, then
// the slugified identifier.
func (s *Store) GetPost(ctx context.Context, identifier string) (post.Row, error) {
	identifier = strings.TrimSpace(identifier)
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		row, err := s.GetPostByID(ctx, id)
		if !errors.Is(err, ErrNotFound) {
			return row, err
		}
	}
	row, err := s.getPostBySlug(ctx, identifier)
	if !errors.Is(err, ErrNotFound) {
		return row, err
	}
	if slug := post.Slugify(identifier); slug != "" && slug != identifier {
		return s.getPostBySlug(ctx, slug)
	}
	return post.Row{}, fmt.Errorf("post %q: %w", identifier, ErrNotFound)
}

// GetPostByID returns a post by primary key.
func (s *Store) GetPostByID(ctx context.Context, id int64) (post.Row, error) {
	row, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	return row, notFound(err, fmt.Sprintf("post %d", id))
}

func (s *Store) getPostBySlug(ctx context.Context, slug string) (post.Row, error) {
	row, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE slug = ?`, slug))
	return row, notFound(err, fmt.Sprintf("post %q", slug))
}

// ListPosts returns posts matching f, newest first.
func (s *Store) ListPosts(ctx context.Context, f ListFilter) ([]post.Row, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "p.status = ?")
		args = append(args, string(f.Status))
	}
	if f.UserID != 0 {
		where = append(where, "p.user_id = ?")
		args = append(args, f.UserID)
	}
	if tag := normalizeTag(f.Tag); tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id AND lower(t.name) = ?)")
		args = append(args, tag)
	}
	q := `SELECT ` + prefixColumns("p.") + ` FROM posts p`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY COALESCE(p.published_at, p.created_at) DESC, p.id DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []post.Row
	for rows.Next() {
		r, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func prefixColumns(prefix string) string {
	cols := strings.Split(postColumns, ", ")
	for i := range cols {
		cols[i] = prefix + cols[i]
	}
	return strings.Join(cols, ", ")
}

// InsertPost creates a post row. A taken slug yields archive.ErrSlugConflict.
func (s *Store) InsertPost(ctx context.Context, r post.Row) (post.Row, error) {
	now := s.now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if r.Status == post.StatusPublished && r.PublishedAt == nil {
		r.PublishedAt = &now
	}
	if r.Links == "" {
		r.Links = "[]"
	}
	var published any
	if r.PublishedAt != nil {
		published = r.PublishedAt.UTC().Format(timeLayout)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO posts (user_id, name, slug, description, image_src, image_alt, language, links, blob_path, status, created_at, updated_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Name, r.Slug, r.Description, r.ImageSrc, r.ImageAlt, r.Language, r.Links, r.BlobPath,
		string(r.Status), r.CreatedAt.UTC().Format(timeLayout), r.UpdatedAt.UTC().Format(timeLayout), published)
	if isUniqueViolation(err) {
		return post.Row{}, fmt.Errorf("%w: %s", archive.ErrSlugConflict, r.Slug)
	}
	if err != nil {
		return post.Row{}, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return post.Row{}, err
	}
	return s.GetPostByID(ctx, id)
}

// UpdatePost applies the non-nil fields of p and returns the updated row.
// Publishing a post for the first time stamps published_at.
func (s *Store) UpdatePost(ctx context.Context, id int64, p post.Patch) (post.Row, error) {
	var sets []string
	var args []any
	set := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	set("name", p.Name)
	set("slug", p.Slug)
	set("description", p.Description)
	set("image_src", p.ImageSrc)
	set("image_alt", p.ImageAlt)
	set("language", p.Language)
	set("links", p.Links)
	set("blob_path", p.BlobPath)
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
		if *p.Status == post.StatusPublished {
			sets = append(sets, "published_at = COALESCE(published_at, ?)")
			args = append(args, s.stamp())
		}
	}
	if len(sets) == 0 {
		return s.GetPostByID(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.stamp(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE posts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if isUniqueViolation(err) && p.Slug != nil {
		return post.Row{}, fmt.Errorf("%w: %s", archive.ErrSlugConflict, *p.Slug)
	}
	if err != nil {
		return post.Row{}, fmt.Errorf("update post %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return post.Row{}, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	return s.GetPostByID(ctx, id)
}

// DeletePost removes a post; its tag links and asset rows cascade.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	return nil
}

// SlugExists reports whether any post uses slug.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE slug = ?`, slug).Scan(&n)
	return n > 0, err
}

// SlugsWithPrefix returns prefix itself and every prefix-N style slug in use.
func (s *Store) SlugsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx, `SELECT slug FROM posts WHERE slug = ? OR slug LIKE ? ESCAPE '\'`, prefix, escaped+"-%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

// PostTags returns the tags of a post in the order they were set.
func (s *Store) PostTags(ctx context.Context, postID int64) ([]post.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.id, t.name, t.category, t.description
		FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id = ? ORDER BY pt.rowid`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []post.Tag{}
	for rows.Next() {
		var t post.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Category, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetPostTags upserts each tag by name and relinks the post to exactly this
// list, in order. Non-empty category and description values overwrite the
// stored ones.
func (s *Store) SetPostTags(ctx context.Context, postID int64, tags []post.Tag) ([]post.Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return nil, err
	}
	now := s.stamp()
	seen := mapset.NewThreadUnsafeSet[string]()
	out := []post.Tag{}
	for _, t := range tags {
		name := strings.TrimSpace(t.Name)
		if name == "" || !seen.Add(strings.ToLower(name)) {
			continue
		}
		var saved post.Tag
		err := tx.QueryRowContext(ctx, `INSERT INTO tags (name, category, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				category = CASE WHEN excluded.category <> '' THEN excluded.category ELSE tags.category END,
				description = CASE WHEN excluded.description <> '' THEN excluded.description ELSE tags.description END,
				updated_at = excluded.updated_at
			RETURNING id, name, category, description`,
			name, t.Category, t.Description, now, now).
			Scan(&saved.ID, &saved.Name, &saved.Category, &saved.Description)
		if err != nil {
			return nil, fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO post_tags (post_id, tag_id) VALUES (?, ?)`, postID, saved.ID); err != nil {
			return nil, fmt.Errorf("link tag %q: %w", name, err)
		}
		out = append(out, saved)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTags returns the names of tags used by published posts, sorted.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT lower(t.name) FROM tags t
		JOIN post_tags pt ON pt.tag_id = t.id
		JOIN posts p ON p.id = pt.post_id
		WHERE p.status = 'published'
		ORDER BY lower(t.name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug, avatar FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Slug, &u.Avatar)
	return u, notFound(err, fmt.Sprintf("user %d", id))
}

// EnsureAdmin creates or renames the administrator account.
func (s *Store) EnsureAdmin(ctx context.Context, name string) (User, error) {
	slug := post.Slugify(name)
	if slug == "" {
		slug = "admin"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, name, slug, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, slug = excluded.slug`,
		AdminUserID, name, slug, s.stamp())
	if err != nil {
		return User{}, fmt.Errorf("ensure admin: %w", err)
	}
	return s.GetUser(ctx, AdminUserID)
}

// AddPostAsset records an uploaded file.
func (s *Store) AddPostAsset(ctx context.Context, a PostAsset) (PostAsset, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO post_assets (post_id, pathname, kind, content_type, size, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pathname) DO UPDATE SET content_type = excluded.content_type, size = excluded.size,
			width = excluded.width, height = excluded.height`,
		a.PostID, a.Pathname, a.Kind, a.ContentType, a.Size, a.Width, a.Height, a.CreatedAt.Format(timeLayout))
	if err != nil {
		return PostAsset{}, fmt.Errorf("add asset %s: %w", a.Pathname, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return a, nil
}

// ListPostAssets returns the assets of a post, oldest first.
func (s *Store) ListPostAssets(ctx context.Context, postID int64) ([]PostAsset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, post_id, pathname, kind, content_type, size, width, height, created_at
		FROM post_assets WHERE post_id = ? ORDER BY id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PostAsset{}
	for rows.Next() {
		var a PostAsset
		var created string
		if err := rows.Scan(&a.ID, &a.PostID, &a.Pathname, &a.Kind, &a.ContentType, &a.Size, &a.Width, &a.Height, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeletePostAsset forgets the asset stored at pathname.
func (s *Store) DeletePostAsset(ctx context.Context, postID int64, pathname string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM post_assets WHERE post_id = ? AND pathname = ?`, postID, pathname)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("asset %s: %w", pathname, ErrNotFound)
	}
	return nil
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
