package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/docgate/pkg/content"
	"github.com/CTAG07/docgate/pkg/snapshot"
)

// CacheAPI exposes the document cache and the snapshot store to operators.
type CacheAPI struct {
	cache     *content.Cache
	snapshots snapshot.Store
	logger    *slog.Logger
}

// NewCacheAPI creates a new instance of the CacheAPI.
func NewCacheAPI(cache *content.Cache, snapshots snapshot.Store, logger *slog.Logger) *CacheAPI {
	return &CacheAPI{
		cache:     cache,
		snapshots: snapshots,
		logger:    logger,
	}
}

// RegisterRoutes sets up the routing for all /api/cache endpoints.
func (c *CacheAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/cache/stats", c.handleStats)
	mux.HandleFunc("/api/cache/entries", c.handleEntries)
	mux.HandleFunc("/api/cache/purge", c.handlePurge)
	mux.HandleFunc("/api/cache/snapshots", c.handleSnapshots)
}

func (c *CacheAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, "cache:read") {
		return
	}
	respondWithJSON(w, http.StatusOK, c.cache.Stats())
}

func (c *CacheAPI) handleEntries(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, "cache:read") {
		return
	}
	respondWithJSON(w, http.StatusOK, c.cache.Entries())
}

// handlePurge drops one key so the next request fetches it again.
func (c *CacheAPI) handlePurge(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) || !requireScope(w, r, "cache:manage") {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'key' query parameter")
		return
	}
	if !c.cache.Purge(key) {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("No completed entry for key %q", key))
		return
	}
	c.logger.Info("Cache entry purged via API", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

// handleSnapshots reports (GET) or clears (DELETE) the snapshot store.
func (c *CacheAPI) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, "cache:read") {
			return
		}
		n, err := c.snapshots.Count(r.Context())
		if err != nil {
			c.logger.Error("Failed to count snapshots", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to count snapshots")
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]int{"count": n})
	case http.MethodDelete:
		if !requireScope(w, r, "cache:manage") {
			return
		}
		if err := c.snapshots.Clear(r.Context()); err != nil {
			c.logger.Error("Failed to clear snapshots", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to clear snapshots")
			return
		}
		c.logger.Warn("Snapshot store cleared via API")
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
