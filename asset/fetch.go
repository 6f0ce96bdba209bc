package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eringen/postkit/blob"
)

// ErrNotFound is returned when an asset is in neither the blob store nor
// reachable over HTTP.
var ErrNotFound = errors.New("asset: not found")

// ErrTooLarge is returned when a fetched body exceeds the size limit.
var ErrTooLarge = errors.New("asset: body too large")

const (
	DefaultTimeout = 30 * time.Second
	DefaultMaxSize = 100 << 20
)

// Asset is a fetched media file.
type Asset struct {
	Ref         string // the reference as found in the article
	Path        string // canonical storage path, empty for external assets
	Data        []byte
	ContentType string
}

// Name returns the file name the asset should be stored under.
func (a *Asset) Name() string {
	if a.Path != "" {
		return Basename(a.Path)
	}
	return Basename(a.Ref)
}

// Fetcher retrieves asset bytes, preferring the blob store and falling back
// to HTTP.
type Fetcher struct {
	blobs   blob.Store
	client  *http.Client
	baseURL *url.URL
	maxSize int64
	log     logrus.FieldLogger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the client used for network fetches.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithBaseURL sets the site URL that relative references are fetched from
// when they are missing in storage.
func WithBaseURL(base string) FetcherOption {
	return func(f *Fetcher) {
		if u, err := url.Parse(base); err == nil && u.IsAbs() {
			f.baseURL = u
		}
	}
}

// WithMaxSize caps the size of a single fetched body.
func WithMaxSize(n int64) FetcherOption {
	return func(f *Fetcher) { f.maxSize = n }
}

// WithLogger sets the logger for recoverable fetch failures.
func WithLogger(l logrus.FieldLogger) FetcherOption {
	return func(f *Fetcher) { f.log = l }
}

// NewFetcher returns a Fetcher over blobs. blobs may be nil, in which case
// every fetch goes over HTTP.
func NewFetcher(blobs blob.Store, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		blobs:   blobs,
		client:  &http.Client{Timeout: DefaultTimeout},
		maxSize: DefaultMaxSize,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the bytes behind ref. Internal references are read from
// the blob store first; on a miss, and for external references, the
// reference is fetched over HTTP. Content type comes from the store, then the
// response header, then the file extension.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Asset, error) {
	if strings.HasPrefix(ref, "data:") || strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: %q is not fetchable", ErrNotFound, ref)
	}
	p, internal := Resolve(ref)
	if internal && f.blobs != nil {
		obj, err := f.blobs.Get(ctx, p)
		if err == nil {
			ct := obj.ContentType
			if ct == "" {
				ct = GuessContentType(p)
			}
			return &Asset{Ref: ref, Path: p, Data: obj.Data, ContentType: ct}, nil
		}
		if !errors.Is(err, blob.ErrNotFound) {
			f.log.WithError(err).WithField("path", p).Warn("blob read failed, trying network")
		}
	}

	data, ct, err := f.download(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ct == "" {
		if internal {
			ct = GuessContentType(p)
		} else {
			ct = GuessContentType(Basename(ref))
		}
	}
	a := &Asset{Ref: ref, Data: data, ContentType: ct}
	if internal {
		a.Path = p
	}
	return a, nil
}

func (f *Fetcher) download(ctx context.Context, ref string) ([]byte, string, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if !target.IsAbs() {
		if f.baseURL == nil {
			return nil, "", fmt.Errorf("%w: %s (no base URL for relative reference)", ErrNotFound, ref)
		}
		target = f.baseURL.ResolveReference(target)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, "", fmt.Errorf("%w: unsupported scheme %q", ErrNotFound, target.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrNotFound, target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: %s returned %d", ErrNotFound, target, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", target, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, target, f.maxSize)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
