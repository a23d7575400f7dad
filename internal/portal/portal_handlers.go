package portal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
	"github.com/google/uuid"
)

const maxMessageLength = 4000

// requireSession authenticates API requests from the session cookie.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := s.deps.Sessions.Validate(r.Context(), s.deps.Sessions.TokenFromRequest(r))
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(WithClient(r.Context(), client)))
	}
}

// GET /api/portal/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	client, _ := ClientFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"client": viewOf(client)})
}

// GET /api/portal/project
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	client, _ := ClientFromContext(r.Context())

	overview, err := s.deps.Store.GetProjectOverview(r.Context(), client.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "no project yet")
			return
		}
		s.log.ErrorContext(r.Context(), "failed to load project", "client_id", client.ID, "error", err)
		writeErr(w, http.StatusInternalServerError, "could not load project")
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// GET /api/portal/messages
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	client, _ := ClientFromContext(r.Context())

	messages, err := s.deps.Store.ListMessages(r.Context(), client.ID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to list messages", "client_id", client.ID, "error", err)
		writeErr(w, http.StatusInternalServerError, "could not load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// POST /api/portal/messages
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	client, _ := ClientFromContext(r.Context())

	var in struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		writeErr(w, http.StatusBadRequest, "message body is required")
		return
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("message is longer than %d characters", maxMessageLength))
		return
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		ClientID:  client.ID,
		Sender:    models.SenderClient,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.deps.Store.AddMessage(r.Context(), msg); err != nil {
		s.log.ErrorContext(r.Context(), "failed to store message", "client_id", client.ID, "error", err)
		writeErr(w, http.StatusInternalServerError, "could not send message")
		return
	}

	for _, chatID := range s.cfg.AdminChats {
		s.notify(r.Context(), chatID, fmt.Sprintf("New portal message from %s (%s):\n%s",
			client.Name, client.AccessCode, body))
	}

	writeJSON(w, http.StatusCreated, msg)
}
