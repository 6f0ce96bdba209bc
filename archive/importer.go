package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/eringen/postkit/asset"
	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/document"
	"github.com/eringen/postkit/post"
)

// ErrSlugConflict is returned by RowStore.InsertPost when the slug is
// already taken.
var ErrSlugConflict = errors.New("archive: slug already exists")

// MaxSlugAttempts bounds slug re-probing after a conflict in batch mode.
const MaxSlugAttempts = 5

// RowStore persists imported posts.
type RowStore interface {
	SlugsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	InsertPost(ctx context.Context, row post.Row) (post.Row, error)
	UpdatePost(ctx context.Context, id int64, p post.Patch) (post.Row, error)
	SetPostTags(ctx context.Context, id int64, tags []post.Tag) ([]post.Tag, error)
}

// Import steps reported through ProgressFunc.
const (
	StepValidating = "validating"
	StepSaving     = "saving"
	StepAssets     = "assets"
	StepTags       = "tags"
	StepDone       = "done"
)

// Progress describes where an import currently is.
type Progress struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	Name  string `json:"name"`
	Step  string `json:"step"`
}

// ProgressFunc receives import progress. It is called synchronously.
type ProgressFunc func(Progress)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// Imported is one created post.
type Imported struct {
	Row     post.Row
	Tags    []post.Tag
	Article *document.Node
	// Assets lists the blob paths written for this post.
	Assets []string
}

// Result is the outcome of an import call.
type Result struct {
	Posts []Imported
	Batch bool
}

// Importer creates posts from payloads and archives. Rows created before a
// failure are kept.
type Importer struct {
	rows  RowStore
	blobs blob.Store
	opts  options
}

// NewImporter returns an Importer writing rows to rows and articles and
// media to blobs.
func NewImporter(rows RowStore, blobs blob.Store, opts ...Option) *Importer {
	return &Importer{rows: rows, blobs: blobs, opts: newOptions(opts)}
}

type importItem struct {
	def      post.Definition
	doc      *document.Node
	dir      string
	manifest *Manifest
	assets   []string
}

// ImportPayload imports posts decoded from a JSON body.
func (im *Importer) ImportPayload(ctx context.Context, userID int64, p post.Payload) (*Result, error) {
	items := make([]importItem, len(p.Posts))
	for i, def := range p.Posts {
		items[i] = importItem{def: def}
	}
	return im.run(ctx, userID, nil, items, p.Batch)
}

// ImportArchive imports every post found in a.
func (im *Importer) ImportArchive(ctx context.Context, userID int64, a *Archive) (*Result, error) {
	cands, err := Candidates(a)
	if err != nil {
		return nil, err
	}
	items := make([]importItem, len(cands))
	batch := len(cands) > 1
	for i, c := range cands {
		items[i] = importItem{def: c.Post, dir: c.Dir, manifest: c.Manifest, assets: c.Assets}
		if c.Dir != "" {
			batch = true
		}
	}
	return im.run(ctx, userID, a, items, batch)
}

func (im *Importer) run(ctx context.Context, userID int64, a *Archive, items []importItem, batch bool) (*Result, error) {
	if len(items) == 0 {
		return nil, post.Invalid("posts", "must not be empty")
	}
	for i := range items {
		im.report(i, len(items), items[i].def.Name, StepValidating)
		if err := validateItem(&items[i]); err != nil {
			if batch {
				return nil, prefixFields(err, fmt.Sprintf("posts[%d].", i))
			}
			return nil, err
		}
	}

	res := &Result{Batch: batch, Posts: make([]Imported, 0, len(items))}
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		got, err := im.importOne(ctx, userID, a, it, batch, func(step string) {
			im.report(i, len(items), it.def.Name, step)
		})
		if err != nil {
			return res, err
		}
		res.Posts = append(res.Posts, *got)
	}
	return res, nil
}

func (im *Importer) report(i, total int, name, step string) {
	if im.opts.progress != nil {
		im.opts.progress(Progress{Index: i, Total: total, Name: name, Step: step})
	}
}

func validateItem(it *importItem) error {
	if err := post.Validate(it.def); err != nil {
		return err
	}
	doc, err := document.Parse(it.def.Article)
	switch {
	case errors.Is(err, document.ErrEmpty):
		doc = document.Placeholder()
	case err != nil:
		return post.Invalid("article", err.Error())
	}
	it.doc = doc
	return nil
}

func prefixFields(err error, prefix string) error {
	var verr *post.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	out := &post.ValidationError{Fields: make([]post.FieldError, len(verr.Fields))}
	for i, f := range verr.Fields {
		out.Fields[i] = post.FieldError{Field: prefix + f.Field, Message: f.Message}
	}
	return out
}

func (im *Importer) importOne(ctx context.Context, userID int64, a *Archive, it importItem, batch bool, step func(string)) (*Imported, error) {
	step(StepSaving)
	row, err := im.insert(ctx, post.NewRow(it.def, userID), post.BaseSlug(it.def.Name), batch)
	if err != nil {
		return nil, err
	}
	log := im.opts.log.WithFields(logrus.Fields{"post": row.ID, "slug": row.Slug})

	articlePath := fmt.Sprintf("%s/%d/article.json", PostsDir, row.ID)
	if err := im.putArticle(ctx, articlePath, it.doc); err != nil {
		return nil, err
	}
	if row, err = im.rows.UpdatePost(ctx, row.ID, post.Patch{BlobPath: &articlePath}); err != nil {
		return nil, fmt.Errorf("link article: %w", err)
	}

	doc := it.doc
	var stored []string
	if a != nil && len(it.assets) > 0 {
		step(StepAssets)
		var table map[string]string
		table, stored, err = im.storeAssets(ctx, a, it, row.Slug)
		if err != nil {
			return nil, err
		}
		rw := document.NewRewriter(table)
		doc = rw.Apply(it.doc)
		if err := im.putArticle(ctx, articlePath, doc); err != nil {
			return nil, err
		}
		if cover, ok := rw.Lookup(row.ImageSrc); ok && row.ImageSrc != "" {
			if row, err = im.rows.UpdatePost(ctx, row.ID, post.Patch{ImageSrc: &cover}); err != nil {
				return nil, fmt.Errorf("update cover: %w", err)
			}
		}
		log.WithField("assets", len(stored)).Debug("stored imported assets")
	}

	step(StepTags)
	tags, err := im.rows.SetPostTags(ctx, row.ID, it.def.Tags)
	if err != nil {
		return nil, fmt.Errorf("set tags: %w", err)
	}
	step(StepDone)
	log.Info("imported post")
	return &Imported{Row: row, Tags: tags, Article: doc, Assets: stored}, nil
}

// insert assigns a free slug and inserts row. In batch mode a slug taken by
// a concurrent writer is marked as used and the probe is retried.
func (im *Importer) insert(ctx context.Context, row post.Row, base string, batch bool) (post.Row, error) {
	existing, err := im.rows.SlugsWithPrefix(ctx, base)
	if err != nil {
		return post.Row{}, fmt.Errorf("probe slugs: %w", err)
	}
	taken := mapset.NewThreadUnsafeSet(existing...)
	for attempt := 1; ; attempt++ {
		row.Slug = post.UniqueSlug(base, taken)
		created, err := im.rows.InsertPost(ctx, row)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrSlugConflict) || !batch || attempt >= MaxSlugAttempts {
			return post.Row{}, err
		}
		im.opts.log.WithField("slug", row.Slug).Warn("slug taken during import, retrying")
		taken.Add(row.Slug)
	}
}

func (im *Importer) putArticle(ctx context.Context, p string, doc *document.Node) error {
	data, err := document.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode article: %w", err)
	}
	if err := im.blobs.Put(ctx, p, data, "application/json"); err != nil {
		return fmt.Errorf("store article: %w", err)
	}
	return nil
}

// storeAssets writes the candidate's media under posts/<slug>/ and returns
// the rewrite table from original references to the new direct paths.
func (im *Importer) storeAssets(ctx context.Context, a *Archive, it importItem, slug string) (map[string]string, []string, error) {
	prefix := PostsDir + "/" + slug + "/"
	existing, err := im.blobs.List(ctx, prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	names := asset.NewNameSet()
	for _, item := range existing {
		names.Reserve(item.Pathname)
	}

	urls := make(map[string]string, len(it.assets))
	stored := make([]string, 0, len(it.assets))
	for _, entry := range it.assets {
		data, _ := a.Get(entry)
		filename := path.Base(entry)
		if blob.ValidatePath(prefix+filename) != nil {
			filename = asset.SafeFilename(filename)
		}
		target := names.Reserve(prefix + filename)
		if err := im.blobs.Put(ctx, target, data, asset.GuessContentType(target)); err != nil {
			return nil, nil, fmt.Errorf("store %s: %w", entry, err)
		}
		urls[entry] = asset.DirectURL(target)
		stored = append(stored, target)
	}
	return rewriteTable(it.dir, it.manifest, it.assets, urls), stored, nil
}

// rewriteTable correlates manifest references with archive entries. Each
// manifest path is matched against the entries by, in order: exact name,
// name relative to the post directory, with an assets/ prefix added, with an
// assets/ prefix stripped, and finally a unique basename. Entries no
// manifest reference claimed are keyed by their own names instead.
func rewriteTable(dir string, m *Manifest, entries []string, urls map[string]string) map[string]string {
	table := make(map[string]string)
	claimed := mapset.NewThreadUnsafeSet[string]()
	owned := mapset.NewThreadUnsafeSet(entries...)

	if m != nil {
		refs := make([]string, 0, len(m.Files))
		for ref := range m.Files {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			if entry, ok := matchEntry(dir, m.Files[ref].Path, entries, owned); ok {
				table[ref] = urls[entry]
				claimed.Add(entry)
			}
		}
	}

	for _, entry := range entries {
		if claimed.Contains(entry) {
			continue
		}
		rel := strings.TrimPrefix(entry, dir+"/")
		for _, key := range []string{entry, "/" + entry, AssetsDir + "/" + entry, rel, path.Base(entry)} {
			if _, ok := table[key]; !ok {
				table[key] = urls[entry]
			}
		}
	}
	return table
}

func matchEntry(dir, p string, entries []string, owned mapset.Set[string]) (string, bool) {
	if p == "" {
		return "", false
	}
	stripped := strings.TrimPrefix(p, AssetsDir+"/")
	for _, candidate := range []string{
		p,
		join(dir, p),
		AssetsDir + "/" + p,
		join(dir, AssetsDir+"/"+p),
		stripped,
		join(dir, stripped),
	} {
		if owned.Contains(candidate) {
			return candidate, true
		}
	}
	base := path.Base(p)
	match := ""
	for _, e := range entries {
		if path.Base(e) == base {
			if match != "" {
				return "", false
			}
			match = e
		}
	}
	return match, match != ""
}
