package archive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/eringen/postkit/asset"
	"github.com/eringen/postkit/document"
	"github.com/eringen/postkit/post"
)

// Fetcher resolves a media reference to its bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*asset.Asset, error)
}

// Option configures a Builder or an Importer.
type Option func(*options)

type options struct {
	log      logrus.FieldLogger
	now      func() time.Time
	assets   bool
	progress ProgressFunc
}

func newOptions(opts []Option) options {
	o := options{
		log:    logrus.StandardLogger(),
		now:    time.Now,
		assets: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for skipped assets and progress.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithClock overrides the clock used for exportedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// IncludeAssets controls whether exports carry media files and manifests.
func IncludeAssets(include bool) Option {
	return func(o *options) { o.assets = include }
}

// Builder assembles export archives.
type Builder struct {
	fetcher Fetcher
	opts    options
}

// NewBuilder returns a Builder that fetches media through f.
func NewBuilder(f Fetcher, opts ...Option) *Builder {
	return &Builder{fetcher: f, opts: newOptions(opts)}
}

// Single exports one post at the archive root.
func (b *Builder) Single(ctx context.Context, def post.Definition) (*Archive, error) {
	a := New()
	names := asset.NewNameSet()
	if _, err := b.addPost(ctx, a, names, "", def, FormatTime(b.opts.now())); err != nil {
		return nil, err
	}
	return a, nil
}

// Batch exports every post under posts/<slug>/ and indexes them in a root
// manifest.
func (b *Builder) Batch(ctx context.Context, defs []post.Definition) (*Archive, error) {
	a := New()
	names := asset.NewNameSet()
	dirs := asset.NewNameSet()
	exportedAt := FormatTime(b.opts.now())
	root := RootManifest{
		ExportedAt:    exportedAt,
		FormatVersion: FormatVersion,
		Count:         len(defs),
		Posts:         make([]RootManifestPost, 0, len(defs)),
	}
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := dirs.Reserve(PostsDir + "/" + batchDirName(def))
		manifest, err := b.addPost(ctx, a, names, dir, def, exportedAt)
		if err != nil {
			return nil, err
		}
		root.Posts = append(root.Posts, RootManifestPost{
			Slug:     def.Slug,
			ID:       def.ID,
			Path:     dir,
			Manifest: manifest,
		})
	}
	if err := a.AddJSON(ManifestFileName, root); err != nil {
		return nil, err
	}
	return a, nil
}

func batchDirName(def post.Definition) string {
	if s := post.Slugify(def.Slug); s != "" {
		return s
	}
	return "post-" + strconv.FormatInt(def.ID, 10)
}

// addPost writes the post, its assets and its manifest under dir. It returns
// the manifest entry name, or nil when assets are excluded.
func (b *Builder) addPost(ctx context.Context, a *Archive, names *asset.NameSet, dir string, def post.Definition, exportedAt string) (*string, error) {
	if err := a.AddJSON(join(dir, PostFileName), PostFile{ExportedAt: exportedAt, Post: def}); err != nil {
		return nil, err
	}
	if !b.opts.assets {
		return nil, nil
	}
	log := b.opts.log.WithFields(logrus.Fields{"post": def.ID, "slug": def.Slug})

	manifest := Manifest{
		Files: make(map[string]ManifestEntry),
		Meta: ManifestMeta{
			ID:          def.ID,
			Title:       def.Name,
			Description: def.Description,
			Slug:        def.Slug,
			ExportedAt:  exportedAt,
		},
	}
	if def.User != nil {
		manifest.Meta.Author = def.User.Name
	}

	// references naming the same stored file share one entry
	written := make(map[string]ManifestEntry)
	failed := mapset.NewThreadUnsafeSet[string]()
	for _, ref := range b.refs(def, log) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := canonicalRef(ref)
		if entry, ok := written[key]; ok {
			manifest.Files[ref] = entry
			continue
		}
		if failed.Contains(key) {
			continue
		}
		got, err := b.fetcher.Fetch(ctx, ref)
		if err != nil {
			failed.Add(key)
			log.WithError(err).WithField("ref", ref).Warn("skipping asset")
			continue
		}
		name := names.Reserve(join(dir, AssetsDir+"/"+entryBase(got, def)))
		if err := a.Add(name, got.Data); err != nil {
			return nil, err
		}
		entry := ManifestEntry{Path: name, Size: len(got.Data), ContentType: got.ContentType}
		written[key] = entry
		manifest.Files[ref] = entry
	}

	name := join(dir, ManifestFileName)
	if err := a.AddJSON(name, manifest); err != nil {
		return nil, err
	}
	return &name, nil
}

// refs lists the references to export: the cover first, then the article
// references in sorted order.
func (b *Builder) refs(def post.Definition, log logrus.FieldLogger) []string {
	var out []string
	cover := def.CoverSrc()
	if cover != "" && !isDataURI(cover) {
		out = append(out, cover)
	}
	if len(def.Article) == 0 {
		return out
	}
	doc, err := document.Parse(def.Article)
	if err != nil {
		if !errors.Is(err, document.ErrEmpty) {
			log.WithError(err).Warn("article unreadable, exporting cover only")
		}
		return out
	}
	for _, ref := range document.SortedRefs(document.CollectAssetRefs(doc)) {
		if ref != cover {
			out = append(out, ref)
		}
	}
	return out
}

// canonicalRef maps a reference to the blob path it names, or to itself when
// it names no stored file.
func canonicalRef(ref string) string {
	if p, ok := asset.Resolve(ref); ok {
		return p
	}
	return ref
}

// entryBase picks the file name an asset is stored under inside assets/.
func entryBase(got *asset.Asset, def post.Definition) string {
	base := got.Name()
	if base != "" && ValidateName(base) == nil {
		return base
	}
	if base != "" {
		if safe := asset.SafeFilename(base); ValidateName(safe) == nil {
			return safe
		}
	}
	return fmt.Sprintf("asset-%s", batchDirName(def))
}

func isDataURI(s string) bool {
	return len(s) >= 5 && s[:5] == "data:"
}
