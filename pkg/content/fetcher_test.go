package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CTAG07/docgate/pkg/source"
)

const testSHA = "abcdefabcdefabcdefabcdefabcdefabcdefabcd"

type fakeSource struct {
	mu    sync.Mutex
	files map[string][]byte
	calls []string
	delay time.Duration
}

func (s *fakeSource) ListRefs(context.Context) (*source.RefList, error) {
	return &source.RefList{Refs: []source.Ref{{Name: "HEAD", SHA: testSHA}}}, nil
}

func (s *fakeSource) FetchFile(ctx context.Context, revision, path string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, revision+":"+path)
	data, ok := s.files[path]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, &source.StatusError{URL: path, StatusCode: 404}
	}
	return data, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, revision, path string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[revision+":"+path]
	return d, ok, nil
}

func (m *memStore) Put(_ context.Context, revision, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[revision+":"+path] = data
	return nil
}

func (m *memStore) Count(context.Context) (int, error) { return len(m.data), nil }
func (m *memStore) Clear(context.Context) error { m.data = nil; return nil }

func setupTestFetcher(t *testing.T, files map[string][]byte, mutate func(*FetcherConfig)) (*Fetcher, *fakeSource) {
	t.Helper()
	src := &fakeSource{files: files}
	cfg := DefaultFetcherConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewFetcher(src, source.Revision{SHA: testSHA, Ref: "HEAD"}, cfg), src
}

func TestFetcher_Fetch(t *testing.T) {
	f, src := setupTestFetcher(t, map[string][]byte{
		"site/readme.md":          []byte("# Orb"),
		"site/silverorb/parse.md": []byte("\xef\xbb\xbf# Parse"),
		"site/broken.md":          []byte("bad \xff byte"),
	}, nil)
	ctx := context.Background()

	got, err := f.Fetch(ctx, "readme")
	if err != nil || got != "# Orb" {
		t.Fatalf("Fetch(readme) = (%q, %v)", got, err)
	}
	if src.calls[0] != testSHA+":site/readme.md" {
		t.Errorf("fetch addressed %q", src.calls[0])
	}

	if got, _ = f.Fetch(ctx, "silverorb/parse"); got != "# Parse" {
		t.Errorf("byte order mark not stripped: %q", got)
	}
	if got, _ = f.Fetch(ctx, "broken"); got != "bad \uFFFD byte" {
		t.Errorf("invalid UTF-8 not replaced: %q", got)
	}
}

func TestFetcher_Unavailable(t *testing.T) {
	f, _ := setupTestFetcher(t, nil, nil)

	_, err := f.Fetch(context.Background(), "missing")
	if !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("expected ErrContentUnavailable, got %v", err)
	}
	if !errors.Is(err, source.ErrNotFound) {
		t.Errorf("expected the source's not-found error to be preserved, got %v", err)
	}
}

func TestFetcher_Timeout(t *testing.T) {
	f, src := setupTestFetcher(t, map[string][]byte{"site/slow.md": []byte("x")}, func(c *FetcherConfig) {
		c.Timeout = 20 * time.Millisecond
	})
	src.delay = time.Second

	start := time.Now()
	_, err := f.Fetch(context.Background(), "slow")
	if !errors.Is(err, ErrContentUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline failure, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("fetch was not bounded by its timeout")
	}
}

func TestFetcher_FetchBinary(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	f, src := setupTestFetcher(t, map[string][]byte{"examples/foo.wasm": wasm}, nil)

	got, err := f.FetchBinary(context.Background(), "foo")
	if err != nil {
		t.Fatalf("FetchBinary() error = %v", err)
	}
	if string(got) != string(wasm) {
		t.Errorf("got %x, expected %x", got, wasm)
	}
	if src.calls[0] != testSHA+":examples/foo.wasm" {
		t.Errorf("fetch addressed %q", src.calls[0])
	}
	if f.AssetPath("foo") != "examples/foo.wasm" || f.ContentPath("readme") != "site/readme.md" {
		t.Error("unexpected path mapping")
	}
}

func TestFetcher_Snapshot(t *testing.T) {
	store := &memStore{}
	f, src := setupTestFetcher(t, map[string][]byte{"site/install.md": []byte("# Install")}, func(c *FetcherConfig) {
		c.Store = store
	})
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "install"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected the fetched file to be stored, count = %d", n)
	}

	// A second fetcher at the same revision reads from the store.
	g := NewFetcher(src, f.Revision(), FetcherConfig{ContentPrefix: "site/", ContentExt: ".md", Store: store})
	got, err := g.Fetch(ctx, "install")
	if err != nil || got != "# Install" {
		t.Fatalf("snapshot Fetch() = (%q, %v)", got, err)
	}
	if src.callCount() != 1 {
		t.Errorf("expected 1 upstream call, got %d", src.callCount())
	}
}
