package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestScopeSet(t *testing.T) {
	scopes := parseScopes("cache:read  stats:read")
	if !scopes.allows("cache:read") || !scopes.allows("stats:read") {
		t.Errorf("scopes %v do not allow their own entries", scopes.sorted())
	}
	if scopes.allows("cache:manage") {
		t.Error("cache:read allowed cache:manage")
	}
	if !parseScopes(masterScope).allows("auth:manage") {
		t.Error("master scope did not allow auth:manage")
	}
	if got := scopes.sorted(); !reflect.DeepEqual(got, []string{"cache:read", "stats:read"}) {
		t.Errorf("sorted() = %v", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := bearerToken(r); got != want {
			t.Errorf("bearerToken(%q) = %q, expected %q", header, got, want)
		}
	}
}

func TestAPI_AuthMe(t *testing.T) {
	server, _ := setupTestServer(t, func(c *Config) { c.Server.AdminToken = "secret" })

	rec := doRequest(t, server.apiMux, http.MethodGet, "/api/auth/me", "secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, expected 200", rec.Code)
	}
	var body struct {
		Scopes []string `json:"scopes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(body.Scopes, []string{masterScope}) {
		t.Errorf("admin token scopes = %v, expected [*]", body.Scopes)
	}

	if rec = doRequest(t, server.apiMux, http.MethodPost, "/api/auth/me", "secret", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST me status = %d, expected 405", rec.Code)
	}
	if rec = doRequest(t, server.apiMux, http.MethodDelete, "/api/auth/keys/abc", "secret", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("delete malformed id status = %d, expected 400", rec.Code)
	}
	if rec = doRequest(t, server.apiMux, http.MethodDelete, "/api/auth/keys/42", "secret", nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete unknown id status = %d, expected 404", rec.Code)
	}
}
