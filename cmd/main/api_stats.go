package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_path (
    path          TEXT PRIMARY KEY,
    total_hits    INTEGER NOT NULL DEFAULT 1,
    error_hits    INTEGER NOT NULL DEFAULT 0,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS stats_user_agent (
    user_agent    TEXT PRIMARY KEY,
    total_hits    INTEGER NOT NULL DEFAULT 1,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);
`

// GlobalStatsSummary provides a high-level overview of all collected stats.
type GlobalStatsSummary struct {
	TotalRequests    int64 `json:"total_requests"`
	ErrorResponses   int64 `json:"error_responses"`
	UniquePaths      int64 `json:"unique_paths"`
	UniqueUserAgents int64 `json:"unique_user_agents"`
}

// PathStats is one row of the per-path table.
type PathStats struct {
	Path      string    `json:"path"`
	TotalHits int       `json:"total_hits"`
	ErrorHits int       `json:"error_hits"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// unmatchedPath collects error responses for paths outside the route table,
// so arbitrary request paths cannot grow stats_path.
const unmatchedPath = "(unmatched)"

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	db        *sql.DB
	knownPath func(path string) bool
	logger    *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

// NewStatsAPI creates the stats API. knownPath reports whether a request path
// is in the route table; nil treats every path as unknown.
func NewStatsAPI(db *sql.DB, logger *slog.Logger, knownPath func(path string) bool) *StatsAPI {
	return &StatsAPI{
		db:        db,
		knownPath: knownPath,
		logger:    logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/top_paths", s.handleTopPaths)
	mux.HandleFunc("/api/stats/top_user_agents", s.handleTopUserAgents)
}

// Observe records a served request. Failures are logged and otherwise ignored.
func (s *StatsAPI) Observe(r *http.Request, status int) {
	path := s.statsKey(r.URL.Path, status)
	// The request context may already be done when the client left early.
	if err := s.Record(context.WithoutCancel(r.Context()), path, r.UserAgent(), status); err != nil {
		s.logger.Warn("Failed to record request stats", "path", path, "error", err)
	}
}

// statsKey keeps the request path for successes and routed paths.
func (s *StatsAPI) statsKey(path string, status int) string {
	if status < http.StatusBadRequest || (s.knownPath != nil && s.knownPath(path)) {
		return path
	}
	return unmatchedPath
}

// Record counts one request for path and user agent in a single transaction.
func (s *StatsAPI) Record(ctx context.Context, path, ua string, status int) error {
	now := time.Now()
	errorHit := 0
	if status >= http.StatusBadRequest {
		errorHit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	_, err = tx.ExecContext(ctx, `
        INSERT INTO stats_path (path, error_hits, first_seen, last_seen) VALUES (?, ?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET total_hits = total_hits + 1, error_hits = error_hits + ?, last_seen = ?
    `, path, errorHit, now, now, errorHit, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_path: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO stats_user_agent (user_agent, first_seen, last_seen) VALUES (?, ?, ?)
        ON CONFLICT(user_agent) DO UPDATE SET total_hits = total_hits + 1, last_seen = ?
    `, ua, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_user_agent: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats transaction: %w", err)
	}
	return nil
}

// Summary aggregates the stats tables.
func (s *StatsAPI) Summary(ctx context.Context) (GlobalStatsSummary, error) {
	var summary GlobalStatsSummary
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(total_hits), 0), COALESCE(SUM(error_hits), 0), COUNT(*) FROM stats_path").
		Scan(&summary.TotalRequests, &summary.ErrorResponses, &summary.UniquePaths)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize stats_path: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stats_user_agent").Scan(&summary.UniqueUserAgents); err != nil {
		return summary, fmt.Errorf("failed to count user agents: %w", err)
	}
	return summary, nil
}

// TopPaths returns the most requested paths.
func (s *StatsAPI) TopPaths(ctx context.Context, limit int) ([]PathStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, total_hits, error_hits, first_seen, last_seen FROM stats_path ORDER BY total_hits DESC, path LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top paths: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := []PathStats{}
	for rows.Next() {
		var p PathStats
		if err = rows.Scan(&p.Path, &p.TotalHits, &p.ErrorHits, &p.FirstSeen, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan top paths: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, "stats:read") {
		return
	}
	summary, err := s.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to build stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopPaths(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, "stats:read") {
		return
	}
	results, err := s.TopPaths(r.Context(), 100)
	if err != nil {
		s.logger.Error("Failed to query top paths", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (s *StatsAPI) handleTopUserAgents(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, "stats:read") {
		return
	}
	rows, err := s.db.QueryContext(r.Context(), "SELECT user_agent, total_hits, first_seen, last_seen FROM stats_user_agent ORDER BY total_hits DESC LIMIT 100")
	if err != nil {
		s.logger.Error("Failed to query top UAs", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := []map[string]any{}
	for rows.Next() {
		var ua string
		var hits int
		var first, last time.Time
		if err = rows.Scan(&ua, &hits, &first, &last); err != nil {
			s.logger.Error("Failed to scan top UAs", "error", err)
			continue
		}
		results = append(results, map[string]any{
			"user_agent": ua,
			"total_hits": hits,
			"first_seen": first,
			"last_seen":  last,
		})
	}
	respondWithJSON(w, http.StatusOK, results)
}
