package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/CTAG07/docgate/pkg/snapshot"
	"github.com/CTAG07/docgate/pkg/source"
)

// ErrContentUnavailable is wrapped by every failed fetch: missing file,
// non-2xx answer, transport error or deadline.
var ErrContentUnavailable = errors.New("content unavailable")

// FetcherConfig controls how logical paths map onto files in the source.
type FetcherConfig struct {
	ContentPrefix string
	ContentExt    string
	AssetPrefix   string
	AssetExt      string
	// Timeout bounds each individual fetch. Zero means no deadline.
	Timeout time.Duration
	// Store, when set, is read before and written after each network fetch.
	Store  snapshot.Store
	Logger *slog.Logger
}

// DefaultFetcherConfig matches the layout of the documentation repository:
// pages under site/*.md and example modules under examples/*.wasm.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		ContentPrefix: "site/",
		ContentExt:    ".md",
		AssetPrefix:   "examples/",
		AssetExt:      ".wasm",
		Timeout:       15 * time.Second,
	}
}

// Fetcher reads files from a source at a single revision.
type Fetcher struct {
	source   source.Source
	revision source.Revision
	config   FetcherConfig
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher pinned to revision.
func NewFetcher(src source.Source, revision source.Revision, config FetcherConfig) *Fetcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		source:   src,
		revision: revision,
		config:   config,
		logger:   logger,
	}
}

// Revision returns the pinned revision.
func (f *Fetcher) Revision() source.Revision {
	return f.revision
}

// ContentPath returns the source path of a logical content path.
func (f *Fetcher) ContentPath(logical string) string {
	return f.config.ContentPrefix + logical + f.config.ContentExt
}

// AssetPath returns the source path of a binary asset.
func (f *Fetcher) AssetPath(name string) string {
	return f.config.AssetPrefix + name + f.config.AssetExt
}

// Fetch returns the text of a logical content path. Invalid UTF-8 is
// replaced with U+FFFD and a leading byte order mark is dropped.
func (f *Fetcher) Fetch(ctx context.Context, logical string) (string, error) {
	data, err := f.fetch(ctx, f.ContentPath(logical))
	if err != nil {
		return "", err
	}
	return decodeText(data), nil
}

// FetchBinary returns the raw bytes of an asset.
func (f *Fetcher) FetchBinary(ctx context.Context, name string) ([]byte, error) {
	return f.fetch(ctx, f.AssetPath(name))
}

func (f *Fetcher) fetch(ctx context.Context, path string) ([]byte, error) {
	sha := f.revision.SHA

	if f.config.Store != nil {
		data, ok, err := f.config.Store.Get(ctx, sha, path)
		if err != nil {
			f.logger.Warn("Snapshot lookup failed, fetching from source", "path", path, "error", err)
		} else if ok {
			f.logger.Debug("Serving content from snapshot", "path", path, "revision", f.revision.Short())
			return data, nil
		}
	}

	fetchCtx := ctx
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := f.source.FetchFile(fetchCtx, sha, path)
	if err != nil {
		f.logger.Warn("Fetch failed", "path", path, "revision", f.revision.Short(), "duration", time.Since(start), "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrContentUnavailable, path, err)
	}
	f.logger.Info("Fetched content", "path", path, "revision", f.revision.Short(), "bytes", len(data), "duration", time.Since(start))

	if f.config.Store != nil {
		if err = f.config.Store.Put(ctx, sha, path, data); err != nil {
			f.logger.Warn("Failed to store snapshot", "path", path, "error", err)
		}
	}
	return data, nil
}

func decodeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\uFEFF")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}
