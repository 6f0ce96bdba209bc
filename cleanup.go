package postkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/eringen/postkit/asset"
	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/document"
	"github.com/eringen/postkit/post"
)

// DefaultSweepGrace protects fresh uploads that are not yet saved into an
// article from the scheduled sweep.
const DefaultSweepGrace = 24 * time.Hour

// OrphanSweepJob deletes uploaded images that no article or cover references.
type OrphanSweepJob struct {
	store    *Store
	blobs    blob.Store
	log      logrus.FieldLogger
	schedule string
	grace    time.Duration
	now      func() time.Time
}

// NewOrphanSweepJob returns a sweeper that runs on schedule.
func NewOrphanSweepJob(store *Store, blobs blob.Store, log logrus.FieldLogger, schedule string) *OrphanSweepJob {
	return &OrphanSweepJob{
		store:    store,
		blobs:    blobs,
		log:      log,
		schedule: schedule,
		grace:    DefaultSweepGrace,
		now:      time.Now,
	}
}

func (s *OrphanSweepJob) Name() string     { return "orphan-sweep" }
func (s *OrphanSweepJob) Schedule() string { return s.schedule }

// Run sweeps every post, skipping images younger than the grace period.
func (s *OrphanSweepJob) Run(ctx context.Context) error {
	rows, err := s.store.ListPosts(ctx, ListFilter{})
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}
	cutoff := s.now().Add(-s.grace)
	total := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := loadArticle(ctx, s.blobs, row)
		if err != nil {
			s.log.WithError(err).WithField("post", row.ID).Warn("article unreadable, not sweeping")
			continue
		}
		removed, err := s.SweepPost(ctx, row, doc, cutoff)
		if err != nil {
			return err
		}
		total += len(removed)
	}
	if total > 0 {
		s.log.WithField("removed", total).Info("swept orphan images")
	}
	return nil
}

// SweepPost deletes images under posts/<id>/images/ uploaded before cutoff
// that neither doc nor the cover references. It returns the deleted paths.
func (s *OrphanSweepJob) SweepPost(ctx context.Context, row post.Row, doc *document.Node, cutoff time.Time) ([]string, error) {
	keep := referencedPaths(row, doc)
	items, err := s.blobs.List(ctx, fmt.Sprintf("posts/%d/images/", row.ID))
	if err != nil {
		return nil, fmt.Errorf("list images of post %d: %w", row.ID, err)
	}
	var removed []string
	for _, it := range items {
		if keep.Contains(it.Pathname) || (!it.UploadedAt.IsZero() && it.UploadedAt.After(cutoff)) {
			continue
		}
		if err := s.blobs.Delete(ctx, it.Pathname); err != nil {
			return removed, fmt.Errorf("delete %s: %w", it.Pathname, err)
		}
		if err := s.store.DeletePostAsset(ctx, row.ID, it.Pathname); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed = append(removed, it.Pathname)
	}
	return removed, nil
}

// referencedPaths resolves every asset reference of a post to its storage path.
func referencedPaths(row post.Row, doc *document.Node) mapset.Set[string] {
	refs := mapset.NewThreadUnsafeSet[string]()
	if doc != nil {
		refs = document.CollectAssetRefs(doc)
	}
	if row.ImageSrc != "" {
		refs.Add(row.ImageSrc)
	}
	paths := mapset.NewThreadUnsafeSet[string]()
	for ref := range refs.Iter() {
		if p, ok := asset.Resolve(ref); ok {
			paths.Add(p)
		}
	}
	return paths
}

// loadArticle reads a post's article, falling back to the placeholder when
// none was stored.
func loadArticle(ctx context.Context, blobs blob.Store, row post.Row) (*document.Node, error) {
	if row.BlobPath == "" {
		return document.Placeholder(), nil
	}
	obj, err := blobs.Get(ctx, row.BlobPath)
	if errors.Is(err, blob.ErrNotFound) {
		return document.Placeholder(), nil
	}
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(obj.Data)
	if errors.Is(err, document.ErrEmpty) {
		return document.Placeholder(), nil
	}
	return doc, err
}
