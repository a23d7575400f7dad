package portal

import (
	"errors"
	"net/http"

	"github.com/UnknownOlympus/janus/internal/repository"
)

// GET /login
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, staticFS, "static/login.html")
}

// GET /
// The gate has already resolved the client. Rendering is left to the frontend,
// the dashboard returns the data it needs in one call.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	client, ok := ClientFromContext(r.Context())
	if !ok {
		redirectToLogin(w, r)
		return
	}

	response := map[string]any{"client": viewOf(client)}

	overview, err := s.deps.Store.GetProjectOverview(r.Context(), client.ID)
	switch {
	case err == nil:
		response["project"] = overview
	case errors.Is(err, repository.ErrNotFound):
	default:
		s.log.ErrorContext(r.Context(), "failed to load project", "client_id", client.ID, "error", err)
		writeErr(w, http.StatusInternalServerError, "could not load dashboard")
		return
	}

	writeJSON(w, http.StatusOK, response)
}
