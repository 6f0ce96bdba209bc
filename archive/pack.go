package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// CompressionLevel is the DEFLATE level used for every entry.
	CompressionLevel = 6
	// DefaultMaxUnpackSize bounds the total uncompressed size Unpack accepts.
	DefaultMaxUnpackSize = 512 << 20
)

// entryTime is stamped on every entry so packing is reproducible.
var entryTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// WriteTo packs the archive as a zip into w. Entries are written in
// insertion order with a fixed timestamp, so the same archive always
// produces the same bytes.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, CompressionLevel)
	})
	for _, name := range a.names {
		if err := ValidateName(name); err != nil {
			return cw.n, err
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: entryTime,
		})
		if err != nil {
			return cw.n, fmt.Errorf("create entry %s: %w", name, err)
		}
		if _, err := fw.Write(a.entries[name]); err != nil {
			return cw.n, fmt.Errorf("write entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finish zip: %w", err)
	}
	return cw.n, nil
}

// Pack returns the zip encoding of a.
func Pack(a *Archive) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnpackOption configures Unpack.
type UnpackOption func(*unpackConfig)

type unpackConfig struct {
	maxSize int64
}

// WithMaxSize overrides the total uncompressed size limit.
func WithMaxSize(n int64) UnpackOption {
	return func(c *unpackConfig) { c.maxSize = n }
}

// Unpack decodes a zip into an Archive. Directory entries are skipped; any
// other entry with an unsafe name fails the whole archive.
func Unpack(data []byte, opts ...UnpackOption) (*Archive, error) {
	cfg := unpackConfig{maxSize: DefaultMaxUnpackSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntryName, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	a := New()
	var total int64
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			continue
		}
		if err := ValidateName(f.Name); err != nil {
			return nil, err
		}
		remaining := cfg.maxSize - total
		if f.UncompressedSize64 > uint64(remaining) {
			return nil, fmt.Errorf("%w: entry %s", ErrTooLarge, f.Name)
		}
		body, err := readEntry(f, remaining)
		if err != nil {
			return nil, err
		}
		total += int64(len(body))
		if err := a.Add(f.Name, body); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// readEntry reads at most limit bytes; the header size is not trusted.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: entry %s", ErrTooLarge, f.Name)
	}
	return body, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
