// Package gateway turns HTTP requests into rendered documentation pages.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/docgate/pkg/content"
	"github.com/CTAG07/docgate/pkg/layout"
	"github.com/CTAG07/docgate/pkg/render"
	"github.com/CTAG07/docgate/pkg/routes"
	"golang.org/x/sync/singleflight"
)

// Keys of the shared documents fetched for every page.
const (
	NotFoundKey = "404"
	NavKey      = "_nav"
	FooterKey   = "_footer"
)

// DefaultTitle is the page title used when Options.Title is empty.
const DefaultTitle = "Orb: Write WebAssembly with Elixir"

const (
	faviconPath = "/favicon.ico"
	wasmPrefix  = "/wasm/"
)

const favicon = `<svg width="100" height="100" xmlns="http://www.w3.org/2000/svg">
  <rect width="100" height="100" fill="#74d1f0" />
</svg>`

const fallbackNotFound = "# Page not found\n\nThere is no documentation at this address. Try the [home page](/) or [search](/search).\n"

// Fetcher reads documents and binary assets at the pinned revision.
type Fetcher interface {
	Fetch(ctx context.Context, logical string) (string, error)
	FetchBinary(ctx context.Context, name string) ([]byte, error)
}

// Options holds the collaborators of a Gateway. Cache, Fetcher, Routes,
// Renderer and Layout are required.
type Options struct {
	Cache    *content.Cache
	Fetcher  Fetcher
	Routes   *routes.Table
	Renderer *render.Renderer
	Layout   *layout.Manager
	Title    string
	Logger   *slog.Logger
	// ClientIP resolves the address logged for a request. Defaults to the
	// connection's remote address.
	ClientIP func(*http.Request) string
	// OnServed is called after every request with its final status.
	OnServed func(r *http.Request, status int)
}

// Gateway serves documentation pages, search, the favicon and example assets.
type Gateway struct {
	cache    *content.Cache
	fetcher  Fetcher
	routes   *routes.Table
	renderer *render.Renderer
	layout   *layout.Manager
	title    string
	logger   *slog.Logger
	clientIP func(*http.Request) string
	onServed func(*http.Request, int)
	assets   singleflight.Group
}

// New validates opts and returns a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Cache == nil || opts.Fetcher == nil || opts.Routes == nil || opts.Renderer == nil || opts.Layout == nil {
		return nil, errors.New("gateway: cache, fetcher, routes, renderer and layout are required")
	}
	g := &Gateway{
		cache:    opts.Cache,
		fetcher:  opts.Fetcher,
		routes:   opts.Routes,
		renderer: opts.Renderer,
		layout:   opts.Layout,
		title:    opts.Title,
		logger:   opts.Logger,
		clientIP: opts.ClientIP,
		onServed: opts.OnServed,
	}
	if g.title == "" {
		g.title = DefaultTitle
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if g.clientIP == nil {
		g.clientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	return g, nil
}

// Warm prefetches the not-found document, navigation and footer.
func (g *Gateway) Warm(ctx context.Context) error {
	return g.cache.Warm(ctx, g.fetcher.Fetch, NotFoundKey, NavKey, FooterKey)
}

// Handler returns the gateway wrapped with request ids, access logging and
// panic recovery.
func (g *Gateway) Handler() http.Handler {
	return g.withRequestID(g.recoverer(g))
}

// ServeHTTP dispatches by path: favicon, wasm assets, search, then the route
// table with the not-found document as fallback.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	path := r.URL.Path
	switch {
	case path == faviconPath:
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = io.WriteString(w, favicon)
	case strings.HasPrefix(path, wasmPrefix):
		g.serveAsset(w, r, strings.TrimPrefix(path, wasmPrefix))
	case path == SearchPath:
		g.servePage(w, r, http.StatusOK, SearchMarkdown(r.URL.Query().Get("q")))
	default:
		g.serveDocument(w, r)
	}
}

func (g *Gateway) serveDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := loggerFrom(ctx, g.logger)

	logical, ok := g.routes.RouteFor(r.URL.Path)
	if !ok {
		g.servePage(w, r, http.StatusNotFound, g.notFoundMarkdown(ctx))
		return
	}

	md, err := g.cache.GetOrFetch(ctx, logical, g.fetcher.Fetch)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("Client went away while waiting for content", "logical", logical, "error", err)
			return
		}
		logger.Error("Content unavailable", "path", r.URL.Path, "logical", logical, "error", err)
		g.servePage(w, r, http.StatusBadGateway, unavailableMarkdown(logical))
		return
	}
	g.servePage(w, r, http.StatusOK, md)
}

// notFoundMarkdown returns the shared not-found document. It is the same for
// every unmatched path.
func (g *Gateway) notFoundMarkdown(ctx context.Context) string {
	md, err := g.cache.GetOrFetch(ctx, NotFoundKey, g.fetcher.Fetch)
	if err != nil {
		loggerFrom(ctx, g.logger).Warn("Not-found document unavailable, using built-in page", "error", err)
		return fallbackNotFound
	}
	return md
}

func unavailableMarkdown(logical string) string {
	return fmt.Sprintf("# Content unavailable\n\nThe page `%s` could not be loaded from the documentation source. Please try again later.\n", logical)
}

// fragment renders a sanitized shared fragment. A missing fragment renders
// as empty.
func (g *Gateway) fragment(ctx context.Context, key string) template.HTML {
	md, err := g.cache.GetOrFetch(ctx, key, g.fetcher.Fetch)
	if err != nil {
		loggerFrom(ctx, g.logger).Warn("Page fragment unavailable", "key", key, "error", err)
		return ""
	}
	html, err := g.renderer.Render(md, render.Options{Sanitize: true})
	if err != nil {
		loggerFrom(ctx, g.logger).Warn("Failed to render page fragment", "key", key, "error", err)
		return ""
	}
	return html
}

func (g *Gateway) servePage(w http.ResponseWriter, r *http.Request, status int, markdown string) {
	ctx := r.Context()
	logger := loggerFrom(ctx, g.logger)

	body, err := g.renderer.Render(markdown, render.Options{})
	if err != nil {
		logger.Error("Failed to render page body", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err = g.layout.Render(&buf, layout.Page{
		Title:  g.title,
		Path:   r.URL.Path,
		Nav:    g.fragment(ctx, NavKey),
		Body:   body,
		Footer: g.fragment(ctx, FooterKey),
	})
	if err != nil {
		logger.Error("Failed to execute page template", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}
}

// serveAsset streams an example module straight from the source. Concurrent
// requests for the same name share one fetch; nothing is kept afterwards.
func (g *Gateway) serveAsset(w http.ResponseWriter, r *http.Request, name string) {
	logger := loggerFrom(r.Context(), g.logger)

	if !validAssetName(name) {
		logger.Debug("Rejected asset name", "name", name)
		http.NotFound(w, r)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	v, err, shared := g.assets.Do(name, func() (any, error) {
		return g.fetcher.FetchBinary(ctx, name)
	})
	if err != nil {
		logger.Error("Asset unavailable", "name", name, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	data := v.([]byte)
	logger.Debug("Serving asset", "name", name, "bytes", len(data), "shared", shared)

	w.Header().Set("Content-Type", "application/wasm")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func validAssetName(name string) bool {
	if name == "" {
		return false
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}
