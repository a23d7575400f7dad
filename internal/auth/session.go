package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
)

const tokenBytes = 32

// SessionManager exchanges verified identities for opaque session tokens.
// Only the SHA-256 of a token is persisted.
type SessionManager struct {
	log      *slog.Logger
	sessions repository.SessionStorage
	clients  repository.ClientManager
	metrics  *metrics.Metrics
	cfg      Config
	opts     options
}

// NewSessionManager creates a session manager.
func NewSessionManager(
	log *slog.Logger,
	sessions repository.SessionStorage,
	clients repository.ClientManager,
	m *metrics.Metrics,
	cfg Config,
	opts ...Option,
) *SessionManager {
	defaults := DefaultConfig()
	if cfg.AccessCodeSessionTTL <= 0 {
		cfg.AccessCodeSessionTTL = defaults.AccessCodeSessionTTL
	}
	if cfg.TelegramSessionTTL <= 0 {
		cfg.TelegramSessionTTL = defaults.TelegramSessionTTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaults.CookieName
	}

	return &SessionManager{
		log:      log.With(slog.String("component", "session_manager")),
		sessions: sessions,
		clients:  clients,
		metrics:  m,
		cfg:      cfg,
		opts:     buildOptions(opts),
	}
}

// HashToken returns the hex encoded SHA-256 of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken(r io.Reader) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// TTL returns the session lifetime for a login method.
func (m *SessionManager) TTL(method string) (time.Duration, error) {
	switch method {
	case models.MethodAccessCode:
		return m.cfg.AccessCodeSessionTTL, nil
	case models.MethodTelegram:
		return m.cfg.TelegramSessionTTL, nil
	default:
		return 0, fmt.Errorf("unknown login method %q", method)
	}
}

// Create opens a session for the client. With single-session mode the client's
// previous sessions are removed in the same store operation.
func (m *SessionManager) Create(ctx context.Context, clientID, method string) (string, time.Time, error) {
	ttl, err := m.TTL(method)
	if err != nil {
		return "", time.Time{}, err
	}

	token, err := newToken(m.opts.random)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.opts.now().UTC()
	session := models.Session{
		TokenHash: HashToken(token),
		ClientID:  clientID,
		Method:    method,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err = m.sessions.CreateSession(ctx, session, m.cfg.SingleSession); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create session: %w", err)
	}

	if deleted, cleanupErr := m.sessions.DeleteExpiredSessions(ctx, now); cleanupErr != nil {
		m.log.WarnContext(ctx, "failed to delete expired sessions", "error", cleanupErr)
	} else if deleted > 0 {
		m.log.DebugContext(ctx, "expired sessions deleted", "count", deleted)
	}

	m.metrics.SessionsCreated.WithLabelValues(method).Inc()
	m.log.InfoContext(ctx, "session created", "client_id", clientID, "method", method)
	return token, session.ExpiresAt, nil
}

// Validate resolves a token to its client. Every failure, store errors included,
// is reported as ErrUnauthenticated.
func (m *SessionManager) Validate(ctx context.Context, token string) (models.Client, error) {
	if token == "" {
		return models.Client{}, ErrUnauthenticated
	}

	start := time.Now()
	session, err := m.sessions.GetSession(ctx, HashToken(token))
	m.metrics.DBQueryDuration.WithLabelValues("get_session").Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.log.ErrorContext(ctx, "failed to load session", "error", err)
		}
		return models.Client{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if session.Expired(m.opts.now()) {
		if err = m.sessions.DeleteSession(ctx, session.TokenHash); err != nil {
			m.log.WarnContext(ctx, "failed to delete expired session", "error", err)
		}
		return models.Client{}, ErrUnauthenticated
	}

	client, err := m.clients.GetClientByID(ctx, session.ClientID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.log.ErrorContext(ctx, "failed to load session client", "client_id", session.ClientID, "error", err)
		}
		return models.Client{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !client.IsActive() {
		return models.Client{}, ErrUnauthenticated
	}

	return client, nil
}

// Destroy removes the session behind the token. Unknown tokens are not an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.DeleteSession(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// LoginWithAccessCode resolves an access code to an active client and records the login.
func (m *SessionManager) LoginWithAccessCode(ctx context.Context, code string) (models.Client, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		m.metrics.LoginAttempts.WithLabelValues(models.MethodAccessCode, metrics.ResultMalformed).Inc()
		return models.Client{}, ErrInvalidOrExpired
	}

	client, err := m.clients.GetClientByAccessCode(ctx, code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		m.metrics.LoginAttempts.WithLabelValues(models.MethodAccessCode, metrics.ResultError).Inc()
		return models.Client{}, fmt.Errorf("failed to look up access code: %w", err)
	}
	if err != nil || !client.IsActive() {
		m.metrics.LoginAttempts.WithLabelValues(models.MethodAccessCode, metrics.ResultInvalid).Inc()
		sleepContext(ctx, m.cfg.FailureDelay)
		return models.Client{}, ErrInvalidOrExpired
	}

	now := m.opts.now().UTC()
	if err = m.clients.RecordLogin(ctx, client.ID, 0, now); err != nil {
		return models.Client{}, fmt.Errorf("failed to record login: %w", err)
	}
	client.LastLoginAt = &now

	m.metrics.LoginAttempts.WithLabelValues(models.MethodAccessCode, metrics.ResultSuccess).Inc()
	return client, nil
}

// SetCookie writes the session cookie.
func (m *SessionManager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(m.opts.now()).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie in the browser.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the session token carried by the request, or "".
func (m *SessionManager) TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
