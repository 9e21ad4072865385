package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/docgate/pkg/layout"
)

// LayoutAPI holds the dependencies for the layout template handlers.
type LayoutAPI struct {
	lm     *layout.Manager
	logger *slog.Logger
}

// NewLayoutAPI creates a new instance of the LayoutAPI.
func NewLayoutAPI(lm *layout.Manager, logger *slog.Logger) *LayoutAPI {
	return &LayoutAPI{
		lm:     lm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/layout endpoints.
func (l *LayoutAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/layout/templates", l.handleList)
	mux.HandleFunc("/api/layout/refresh", l.handleRefresh)
}

// handleList returns the names of all loaded layout templates.
func (l *LayoutAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, "layout:read") {
		return
	}
	respondWithJSON(w, http.StatusOK, l.lm.TemplateNames())
}

// handleRefresh re-reads the template override directory. A failed refresh
// keeps the previous templates.
func (l *LayoutAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) || !requireScope(w, r, "layout:write") {
		return
	}
	if err := l.lm.Refresh(); err != nil {
		l.logger.Error("API triggered layout refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	l.logger.Info("Layout templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}
