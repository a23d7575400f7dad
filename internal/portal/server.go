// Package portal serves the customer portal HTTP API and guards its pages.
package portal

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/ratelimit"
	"github.com/UnknownOlympus/janus/internal/repository"
)

//go:embed static
var staticFS embed.FS

// SessionService is the part of auth.SessionManager the HTTP layer uses.
type SessionService interface {
	Create(ctx context.Context, clientID, method string) (string, time.Time, error)
	Validate(ctx context.Context, token string) (models.Client, error)
	Destroy(ctx context.Context, token string) error
	LoginWithAccessCode(ctx context.Context, code string) (models.Client, error)
	SetCookie(w http.ResponseWriter, token string, expiresAt time.Time)
	ClearCookie(w http.ResponseWriter)
	TokenFromRequest(r *http.Request) string
}

// CodeVerifier redeems Telegram login codes.
type CodeVerifier interface {
	Verify(ctx context.Context, raw string) (models.Client, error)
}

// ClientCreator creates clients with a fresh access code.
type ClientCreator interface {
	CreateClient(ctx context.Context, newClient models.NewClient) (models.Client, error)
}

// Store is the data the portal pages read and write.
type Store interface {
	repository.PortalManager
	ListClients(ctx context.Context) ([]models.Client, error)
}

// Deps bundles the collaborators of the portal server.
type Deps struct {
	Sessions SessionService
	Codes    CodeVerifier
	Clients  ClientCreator
	Store    Store
	Limiter  ratelimit.Limiter
	Notifier auth.Notifier // optional
	Metrics  *metrics.Metrics
}

// Config holds the HTTP level settings.
type Config struct {
	AdminToken     string         // Bearer token of the admin API, the API is disabled when empty
	AdminChats     []int64        // Telegram chats that receive client messages
	TrustedProxies []netip.Prefix // peers allowed to set X-Forwarded-For and X-Real-Ip
}

// Server wires the portal routes.
type Server struct {
	log           *slog.Logger
	deps          Deps
	cfg           Config
	now           func() time.Time
	notifyTimeout time.Duration
}

// NewServer creates the portal server.
func NewServer(log *slog.Logger, deps Deps, cfg Config) *Server {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Noop{}
	}
	return &Server{
		log:           log.With(slog.String("component", "portal")),
		deps:          deps,
		cfg:           cfg,
		now:           time.Now,
		notifyTimeout: 10 * time.Second,
	}
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/access-code", s.limited("access_code", s.handleAccessCodeLogin))
	mux.HandleFunc("POST /api/auth/telegram", s.limited("telegram", s.handleTelegramLogin))
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.HandleFunc("GET /api/portal/me", s.requireSession(s.handleMe))
	mux.HandleFunc("GET /api/portal/project", s.requireSession(s.handleProject))
	mux.HandleFunc("GET /api/portal/messages", s.requireSession(s.handleListMessages))
	mux.HandleFunc("POST /api/portal/messages", s.requireSession(s.handlePostMessage))

	mux.HandleFunc("POST /api/admin/clients", s.requireAdmin(s.handleCreateClient))
	mux.HandleFunc("GET /api/admin/clients", s.requireAdmin(s.handleListClients))
	mux.HandleFunc("GET /api/admin/clients/export", s.requireAdmin(s.handleExportClients))

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("GET /{$}", s.handleDashboard)

	return Chain(mux,
		WithRecover(s.log),
		WithRequestLog(s.log, s.cfg.TrustedProxies...),
		Gate(s.log, s.deps.Sessions),
	)
}
