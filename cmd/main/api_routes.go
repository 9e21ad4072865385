package main

import (
	"net/http"

	"github.com/CTAG07/docgate/pkg/routes"
)

// RoutesAPI exposes the route table of the current server cycle.
type RoutesAPI struct {
	table *routes.Table
}

func NewRoutesAPI(table *routes.Table) *RoutesAPI {
	return &RoutesAPI{table: table}
}

func (a *RoutesAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/routes", a.handleList)
}

func (a *RoutesAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, "routes:read") {
		return
	}
	respondWithJSON(w, http.StatusOK, a.table.Entries())
}
