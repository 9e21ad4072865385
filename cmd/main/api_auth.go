package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

// masterScope grants every scope. The first stored key and the admin token
// carry it.
const masterScope = "*"

// masterKeyID is the first key ever created. It cannot be deleted, so a
// database with keys always has a way in.
const masterKeyID = 1

type scopesKey struct{}

// scopeSet is the set of scopes granted to one request.
type scopeSet map[string]struct{}

func parseScopes(s string) scopeSet {
	set := scopeSet{}
	for _, scope := range strings.Fields(s) {
		set[scope] = struct{}{}
	}
	return set
}

func (s scopeSet) allows(scope string) bool {
	if _, ok := s[masterScope]; ok {
		return true
	}
	_, ok := s[scope]
	return ok
}

func (s scopeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// AuthAPI checks bearer credentials against the admin token and the stored
// API keys, and manages those keys.
type AuthAPI struct {
	db        *sql.DB
	tokenHash string
	logger    *slog.Logger
}

// APIKeyInfo describes a stored key. The raw key is never stored.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the body of POST /api/auth/keys.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse returns the raw key once, at creation.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

func setupAuthSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

// NewAuthAPI creates the auth API. adminToken, when set, is accepted as a
// master key in addition to the keys stored in the database.
func NewAuthAPI(db *sql.DB, adminToken string, logger *slog.Logger) *AuthAPI {
	a := &AuthAPI{db: db, logger: logger}
	if adminToken != "" {
		a.tokenHash = hashAPIKey(adminToken)
	}
	return a
}

func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKey)
}

func (a *AuthAPI) keyCount(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&n)
	return n, err
}

// bearerToken extracts the credential from "Authorization: Bearer <key>".
func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// scopesFor resolves a bearer token. It returns sql.ErrNoRows for an unknown
// token.
func (a *AuthAPI) scopesFor(ctx context.Context, token string) (scopeSet, error) {
	hash := hashAPIKey(token)
	if a.tokenHash != "" && subtle.ConstantTimeCompare([]byte(hash), []byte(a.tokenHash)) == 1 {
		return parseScopes(masterScope), nil
	}
	var scopes string
	if err := a.db.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE key_hash = ?", hash).Scan(&scopes); err != nil {
		return nil, err
	}
	return parseScopes(scopes), nil
}

// Authenticate attaches the caller's scopes to the request context. With no
// admin token and no stored keys every caller gets the master scope.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		n, err := a.keyCount(ctx)
		if err != nil {
			a.logger.Error("Failed to count API keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		var scopes scopeSet
		switch token := bearerToken(r); {
		case n == 0 && a.tokenHash == "":
			scopes = parseScopes(masterScope)
		case token == "":
			respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		default:
			scopes, err = a.scopesFor(ctx, token)
			if errors.Is(err, sql.ErrNoRows) {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if err != nil {
				a.logger.Error("Failed to look up API key", "error", err)
				respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, scopesKey{}, scopes)))
	})
}

func (a *AuthAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	scopes, ok := r.Context().Value(scopesKey{}).(scopeSet)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": scopes.sorted()})
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, "auth:manage") {
		return
	}
	if r.Method == http.MethodGet {
		a.listKeys(w, r)
		return
	}
	a.createKey(w, r)
}

func (a *AuthAPI) handleKey(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) || !requireScope(w, r, "auth:manage") {
		return
	}
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	a.deleteKey(w, r, id)
}

func (a *AuthAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	rows, err := a.db.QueryContext(r.Context(), "SELECT id, description, scopes FROM api_keys ORDER BY id")
	if err != nil {
		a.logger.Error("Failed to list API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []APIKeyInfo{}
	for rows.Next() {
		var info APIKeyInfo
		var scopes string
		if err = rows.Scan(&info.ID, &info.Description, &scopes); err != nil {
			a.logger.Error("Failed to scan API key", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to process database results")
			return
		}
		info.Scopes = strings.Fields(scopes)
		keys = append(keys, info)
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	n, err := a.keyCount(r.Context())
	if err != nil {
		a.logger.Error("Failed to count API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	scopes := strings.Join(req.Scopes, " ")
	switch {
	case n == 0:
		scopes = masterScope
	case strings.TrimSpace(scopes) == "":
		respondWithError(w, http.StatusBadRequest, "At least one scope is required")
		return
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		a.logger.Error("Failed to generate API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Key generation failed")
		return
	}

	var id int
	err = a.db.QueryRowContext(r.Context(),
		"INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?) RETURNING id",
		hashAPIKey(rawKey), req.Description, scopes).Scan(&id)
	if err != nil {
		a.logger.Error("Failed to store API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}

	a.logger.Info("API key created", "id", id, "scopes", scopes)
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{
		ID:     id,
		RawKey: rawKey,
		Scopes: strings.Fields(scopes),
	})
}

func (a *AuthAPI) deleteKey(w http.ResponseWriter, r *http.Request, id int) {
	if id == masterKeyID {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Key %d is the master key and cannot be deleted", masterKeyID))
		return
	}

	res, err := a.db.ExecContext(r.Context(), "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondWithError(w, http.StatusNotFound, "Key not found")
		return
	}
	a.logger.Info("API key deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// hasScope reports whether the authenticated caller holds scope.
func hasScope(r *http.Request, scope string) bool {
	scopes, ok := r.Context().Value(scopesKey{}).(scopeSet)
	return ok && scopes.allows(scope)
}

// requireScope writes a 403 and returns false when the scope is missing.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if hasScope(r, scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

// requireMethod writes a 405 and returns false unless r uses method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// generateAPIKey returns "docgate_" followed by 32 random bytes in hex.
func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "docgate_" + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("Failed to encode JSON response", "error", err)
	}
}
