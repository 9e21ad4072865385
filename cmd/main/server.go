package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CTAG07/docgate/pkg/content"
	"github.com/CTAG07/docgate/pkg/gateway"
	"github.com/CTAG07/docgate/pkg/layout"
	"github.com/CTAG07/docgate/pkg/render"
	"github.com/CTAG07/docgate/pkg/routes"
	"github.com/CTAG07/docgate/pkg/snapshot"
	"github.com/CTAG07/docgate/pkg/source"
)

// Server holds everything built for one server cycle: the pinned revision,
// its cache and the two muxes.
type Server struct {
	cm         *ConfigManager
	db         *sql.DB
	logger     *slog.Logger
	revision   source.Revision
	cache      *content.Cache
	routes     *routes.Table
	layout     *layout.Manager
	snapshots  *snapshot.SQLiteStore
	gateway    *gateway.Gateway
	authAPI    *AuthAPI
	serverAPI  *ServerAPI
	cacheAPI   *CacheAPI
	statsAPI   *StatsAPI
	layoutAPI  *LayoutAPI
	routesAPI  *RoutesAPI
	gatewayMux *http.ServeMux
	apiMux     *http.ServeMux
}

func newGitHubClient(cfg *SourceConfig) *source.GitHubClient {
	return source.NewGitHubClient(cfg.Owner, cfg.Repo,
		source.WithGitBaseURL(cfg.GitBaseURL),
		source.WithRawBaseURL(cfg.RawBaseURL),
		source.WithUserAgent("docgate/"+Version),
	)
}

// resolveRevision pins the revision for this cycle. Failure is fatal to the cycle.
func resolveRevision(ctx context.Context, lister source.RefLister, cfg *SourceConfig) (source.Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return source.ResolveRevision(ctx, lister, source.ResolveOptions{
		Pinned:      cfg.Revision,
		FallbackRef: cfg.FallbackRef,
	})
}

func loadRoutes(path string) (*routes.Table, error) {
	if path == "" {
		return routes.Default(), nil
	}
	return routes.Load(path)
}

// NewServer resolves the revision and builds the gateway and API for one cycle.
func NewServer(ctx context.Context, cm *ConfigManager, logger *slog.Logger, db *sql.DB, src source.Source, actionChan chan string) (*Server, error) {
	config := cm.Get()

	revision, err := resolveRevision(ctx, src, config.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision: %w", err)
	}
	logger.Info("Pinned documentation revision", "repository", config.Source.Owner+"/"+config.Source.Repo, "ref", revision.Ref, "sha", revision.SHA)

	table, err := loadRoutes(config.Server.RoutesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	lm, err := layout.NewManager(logger, config.Server.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create layout manager: %w", err)
	}

	snapshots, err := snapshot.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	fetcherConfig := content.FetcherConfig{
		ContentPrefix: config.Source.ContentPrefix,
		ContentExt:    config.Source.ContentExt,
		AssetPrefix:   config.Source.AssetPrefix,
		AssetExt:      config.Source.AssetExt,
		Timeout:       config.Source.FetchTimeout(),
		Logger:        logger,
	}
	if config.Cache.SnapshotEnabled {
		fetcherConfig.Store = snapshots
		pruned, pruneErr := snapshots.PruneExcept(ctx, revision.SHA)
		if pruneErr != nil {
			logger.Warn("Failed to prune snapshots of older revisions", "error", pruneErr)
		} else if pruned > 0 {
			logger.Info("Pruned snapshots of older revisions", "rows", pruned)
		}
	}
	fetcher := content.NewFetcher(src, revision, fetcherConfig)

	policy, err := content.ParseFailurePolicy(config.Cache.FailurePolicy)
	if err != nil {
		return nil, err
	}
	cache := content.NewCache(content.CacheOptions{
		Policy:     policy,
		FailureTTL: time.Duration(config.Cache.FailureTTLSec) * time.Second,
		Logger:     logger,
	})

	// api initialization
	authAPI := NewAuthAPI(db, config.Server.AdminToken, logger)
	serverAPI := NewServerAPI(cm, actionChan, revision, logger)
	cacheAPI := NewCacheAPI(cache, snapshots, logger)
	statsAPI := NewStatsAPI(db, logger, func(path string) bool {
		_, ok := table.RouteFor(path)
		return ok
	})
	layoutAPI := NewLayoutAPI(lm, logger)
	routesAPI := NewRoutesAPI(table)

	gw, err := gateway.New(gateway.Options{
		Cache:    cache,
		Fetcher:  fetcher,
		Routes:   table,
		Renderer: render.New(),
		Layout:   lm,
		Title:    config.Server.SiteTitle,
		Logger:   logger,
		ClientIP: func(r *http.Request) string { return getClientIP(r, cm) },
		OnServed: statsAPI.Observe,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	// The shared documents are fetched up front; a failure here only means
	// the fallbacks will be used.
	if err = gw.Warm(ctx); err != nil {
		logger.Warn("Warm-up incomplete", "error", err)
	}

	server := &Server{
		cm:         cm,
		db:         db,
		logger:     logger,
		revision:   revision,
		cache:      cache,
		routes:     table,
		layout:     lm,
		snapshots:  snapshots,
		gateway:    gw,
		authAPI:    authAPI,
		serverAPI:  serverAPI,
		cacheAPI:   cacheAPI,
		statsAPI:   statsAPI,
		layoutAPI:  layoutAPI,
		routesAPI:  routesAPI,
		gatewayMux: http.NewServeMux(),
		apiMux:     http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)
	server.cacheAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.layoutAPI.RegisterRoutes(apiMux)
	server.routesAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check, which is unauthed so something like docker can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authedAPI)

	server.gatewayMux.Handle("/", gw.Handler())

	return server, nil
}

func getClientIP(r *http.Request, cm *ConfigManager) string {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If splitting fails (e.g., no port), use the address as is.
		remoteIP = r.RemoteAddr
	}

	// Forwarding headers are only honoured from a trusted proxy.
	if cm == nil || !cm.IsTrusted(remoteIP) {
		return remoteIP
	}

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	// The first IP in X-Forwarded-For is the original client.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	return remoteIP
}
