package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/models"
)

type loginRequest struct {
	Code string `json:"code"`
}

type clientView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Company     string     `json:"company,omitempty"`
	Email       string     `json:"email,omitempty"`
	AccessCode  string     `json:"access_code"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func viewOf(client models.Client) clientView {
	return clientView{
		ID:          client.ID,
		Name:        client.Name,
		Company:     client.Company,
		Email:       client.Email,
		AccessCode:  client.AccessCode,
		LastLoginAt: client.LastLoginAt,
	}
}

// limited rejects the request with 429 once the caller's IP exceeds the login budget.
// A limiter failure lets the request through.
func (s *Server) limited(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowed, err := s.deps.Limiter.Allow(r.Context(), route+":"+clientIP(r, s.cfg.TrustedProxies))
		if err != nil {
			s.log.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
			allowed = true
		}
		if !allowed {
			s.deps.Metrics.RateLimited.WithLabelValues(route).Inc()
			writeErr(w, http.StatusTooManyRequests, "too many login attempts, try again later")
			return
		}
		next(w, r)
	}
}

// POST /api/auth/access-code
func (s *Server) handleAccessCodeLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	client, err := s.deps.Sessions.LoginWithAccessCode(r.Context(), in.Code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidOrExpired) {
			writeErr(w, http.StatusUnauthorized, auth.ErrInvalidOrExpired.Error())
			return
		}
		s.log.ErrorContext(r.Context(), "access code login failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "could not log in")
		return
	}

	s.startSession(w, r, client, models.MethodAccessCode)
}

// POST /api/auth/telegram
func (s *Server) handleTelegramLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	client, err := s.deps.Codes.Verify(r.Context(), in.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMalformedCode):
			writeErr(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrInvalidOrExpired):
			writeErr(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, auth.ErrNoAccount):
			s.log.InfoContext(r.Context(), "telegram login without portal account", "error", err)
			writeErr(w, http.StatusUnauthorized, auth.ErrInvalidOrExpired.Error())
		default:
			s.log.ErrorContext(r.Context(), "telegram login failed", "error", err)
			writeErr(w, http.StatusInternalServerError, "could not log in")
		}
		return
	}

	s.startSession(w, r, client, models.MethodTelegram)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, client models.Client, method string) {
	token, expiresAt, err := s.deps.Sessions.Create(r.Context(), client.ID, method)
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to create session", "client_id", client.ID, "error", err)
		writeErr(w, http.StatusInternalServerError, "could not log in")
		return
	}
	s.deps.Sessions.SetCookie(w, token, expiresAt)

	if client.TelegramID != 0 {
		s.notify(r.Context(), client.TelegramID, fmt.Sprintf(
			"New sign-in to your portal on %s (UTC).", s.now().UTC().Format("02.01.2006 15:04")))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"client":     viewOf(client),
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// POST /api/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Destroy(r.Context(), s.deps.Sessions.TokenFromRequest(r)); err != nil {
		s.log.ErrorContext(r.Context(), "failed to destroy session", "error", err)
		writeErr(w, http.StatusInternalServerError, "could not log out")
		return
	}
	s.deps.Sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// notify sends a Telegram message in the background. Failures are only logged.
func (s *Server) notify(ctx context.Context, chatID int64, text string) {
	if s.deps.Notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		if err := s.deps.Notifier.Send(sendCtx, chatID, text); err != nil {
			s.log.WarnContext(sendCtx, "failed to send telegram notification", "chat_id", chatID, "error", err)
		}
	}()
}
