package portal

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/report"
)

const (
	defaultProjectName    = "Website"
	defaultProjectStatus  = "planning"
	defaultWelcomeMessage = "Welcome to your client portal! Here you can follow the progress of your project and reach us at any time."
)

var defaultMilestones = []string{"Kickoff", "Design", "Development", "Launch"}

// requireAdmin checks the static bearer token of the admin API.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			writeErr(w, http.StatusNotFound, "not found")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

type createClientRequest struct {
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Company          string   `json:"company"`
	Phone            string   `json:"phone"`
	TelegramUsername string   `json:"telegram_username"`
	ProjectName      string   `json:"project_name"`
	WelcomeMessage   string   `json:"welcome_message"`
	Milestones       []string `json:"milestones"`
}

func (in createClientRequest) toNewClient() models.NewClient {
	onboarding := &models.Onboarding{
		Project:        models.Project{Name: strings.TrimSpace(in.ProjectName), Status: defaultProjectStatus},
		WelcomeMessage: strings.TrimSpace(in.WelcomeMessage),
		Milestones:     in.Milestones,
	}
	if onboarding.Project.Name == "" {
		onboarding.Project.Name = defaultProjectName
	}
	if onboarding.WelcomeMessage == "" {
		onboarding.WelcomeMessage = defaultWelcomeMessage
	}
	if len(onboarding.Milestones) == 0 {
		onboarding.Milestones = defaultMilestones
	}

	return models.NewClient{
		Client: models.Client{
			Name:             in.Name,
			Email:            strings.TrimSpace(in.Email),
			Company:          strings.TrimSpace(in.Company),
			Phone:            strings.TrimSpace(in.Phone),
			TelegramUsername: in.TelegramUsername,
			Status:           models.ClientActive,
		},
		Onboarding: onboarding,
	}
}

// POST /api/admin/clients
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var in createClientRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	client, err := s.deps.Clients.CreateClient(r.Context(), in.toNewClient())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmptyName):
			writeErr(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrAttemptsExhausted):
			writeErr(w, http.StatusConflict, "could not find a free access code for this name, please try again")
		default:
			s.log.ErrorContext(r.Context(), "failed to create client", "error", err)
			writeErr(w, http.StatusInternalServerError, "could not create client")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"client": client})
}

// GET /api/admin/clients
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.deps.Store.ListClients(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to list clients", "error", err)
		writeErr(w, http.StatusInternalServerError, "could not list clients")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// GET /api/admin/clients/export
func (s *Server) handleExportClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.deps.Store.ListClients(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to list clients", "error", err)
		writeErr(w, http.StatusInternalServerError, "could not list clients")
		return
	}

	start := time.Now()
	buffer, err := report.GenerateClientRoster(clients)
	s.deps.Metrics.ReportGeneration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, report.ErrNoClients) {
			writeErr(w, http.StatusNotFound, "no clients to export")
			return
		}
		s.log.ErrorContext(r.Context(), "failed to generate roster", "error", err)
		writeErr(w, http.StatusInternalServerError, "could not export clients")
		return
	}

	filename := "clients-" + s.now().UTC().Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buffer.WriteTo(w)
}
