package portal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/portal"
	"github.com/UnknownOlympus/janus/internal/ratelimit"
	"github.com/UnknownOlympus/janus/internal/repository/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const adminToken = "admin-secret"

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (n *recordingNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[int64][]string)
	}
	n.sent[chatID] = append(n.sent[chatID], text)
	return nil
}

func (n *recordingNotifier) For(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[chatID]...)
}

type testPortal struct {
	store    *memory.Store
	sessions *auth.SessionManager
	broker   *auth.LoginCodeBroker
	issuer   *auth.AccessCodeIssuer
	notifier *recordingNotifier
	handler  http.Handler
}

func newTestPortal(t *testing.T, limiter ratelimit.Limiter, trustedProxies ...netip.Prefix) *testPortal {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	store := memory.New()

	cfg := auth.DefaultConfig()
	cfg.FailureDelay = 0
	cfg.SecureCookie = false

	issuer := auth.NewAccessCodeIssuer(log, store, m, cfg)
	broker := auth.NewLoginCodeBroker(log, store, store, issuer, m, cfg)
	sessions := auth.NewSessionManager(log, store, store, m, cfg)
	notifier := &recordingNotifier{}

	server := portal.NewServer(log, portal.Deps{
		Sessions: sessions,
		Codes:    broker,
		Clients:  issuer,
		Store:    store,
		Limiter:  limiter,
		Notifier: notifier,
		Metrics:  m,
	}, portal.Config{
		AdminToken:     adminToken,
		AdminChats:     []int64{900},
		TrustedProxies: trustedProxies,
	})

	return &testPortal{
		store:    store,
		sessions: sessions,
		broker:   broker,
		issuer:   issuer,
		notifier: notifier,
		handler:  server.Handler(),
	}
}

func (p *testPortal) createClient(t *testing.T, name, telegram string) models.Client {
	t.Helper()
	client, err := p.issuer.CreateClient(t.Context(), models.NewClient{
		Client: models.Client{Name: name, TelegramUsername: telegram, TelegramID: 111},
		Onboarding: &models.Onboarding{
			Project:        models.Project{Name: "Website", Status: "planning"},
			WelcomeMessage: "Welcome!",
			Milestones:     []string{"Kickoff", "Launch"},
		},
	})
	require.NoError(t, err)
	return client
}

func (p *testPortal) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "portal_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func TestAccessCodeLogin(t *testing.T) {
	t.Parallel()

	t.Run("error - invalid json", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/access-code", strings.NewReader("{"))
		rec := p.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("error - unknown code", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		rec := p.do(jsonRequest(http.MethodPost, "/api/auth/access-code", map[string]string{"code": "NOPE-1234"}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid or expired code")
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("error - wrong method", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		rec := p.do(httptest.NewRequest(http.MethodGet, "/api/auth/access-code", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("success - sets cookie and notifies", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		client := p.createClient(t, "Maria Schmidt", "maria")

		rec := p.do(jsonRequest(http.MethodPost, "/api/auth/access-code",
			map[string]string{"code": strings.ToLower(client.AccessCode)}))

		require.Equal(t, http.StatusOK, rec.Code)
		cookie := sessionCookie(t, rec)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

		validated, err := p.sessions.Validate(t.Context(), cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, client.ID, validated.ID)

		assert.Eventually(t, func() bool { return len(p.notifier.For(111)) == 1 }, time.Second, 10*time.Millisecond)
	})
}

func TestTelegramLogin(t *testing.T) {
	t.Parallel()

	t.Run("error - malformed code", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		rec := p.do(jsonRequest(http.MethodPost, "/api/auth/telegram", map[string]string{"code": "12"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("error - invalid code", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		rec := p.do(jsonRequest(http.MethodPost, "/api/auth/telegram", map[string]string{"code": "123456"}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("error - no account", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		code, err := p.broker.Issue(t.Context(), auth.TelegramUser{ID: 5, Username: "stranger", ChatID: 5})
		require.NoError(t, err)

		rec := p.do(jsonRequest(http.MethodPost, "/api/auth/telegram", map[string]string{"code": code.Code}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid or expired code"}`, rec.Body.String())
	})

	t.Run("success - full flow", func(t *testing.T) {
		t.Parallel()
		p := newTestPortal(t, nil)
		client := p.createClient(t, "alice", "alice")

		code, err := p.broker.Issue(t.Context(), auth.TelegramUser{ID: 111, Username: "alice", ChatID: 111})
		require.NoError(t, err)

		rec := p.do(jsonRequest(http.MethodPost, "/api/auth/telegram", map[string]string{"code": code.Code}))
		require.Equal(t, http.StatusOK, rec.Code)
		cookie := sessionCookie(t, rec)

		req := httptest.NewRequest(http.MethodGet, "/api/portal/me", nil)
		req.AddCookie(cookie)
		rec = p.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), client.ID)

		req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		req.AddCookie(cookie)
		rec = p.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/portal/me", nil)
		req.AddCookie(cookie)
		rec = p.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := newTestPortal(t, ratelimit.NewRedis(client, 2, time.Minute))

	for range 2 {
		rec := p.do(jsonRequest(http.MethodPost, "/api/auth/telegram", map[string]string{"code": "123456"}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := p.do(jsonRequest(http.MethodPost, "/api/auth/telegram", map[string]string{"code": "123456"}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// access code logins have their own budget
	rec = p.do(jsonRequest(http.MethodPost, "/api/auth/access-code", map[string]string{"code": "X-1"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimit_ForwardedHeaders(t *testing.T) {
	t.Parallel()

	newLimitedPortal := func(t *testing.T, trusted ...netip.Prefix) *testPortal {
		t.Helper()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return newTestPortal(t, ratelimit.NewRedis(client, 2, time.Minute), trusted...)
	}
	login := func(p *testPortal, remoteAddr, forwardedFor string) int {
		req := jsonRequest(http.MethodPost, "/api/auth/telegram", map[string]string{"code": "123456"})
		req.RemoteAddr = remoteAddr
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.Header.Set("X-Real-Ip", forwardedFor)
		return p.do(req).Code
	}

	t.Run("error - untrusted peer cannot rotate forwarded addresses", func(t *testing.T) {
		t.Parallel()
		p := newLimitedPortal(t)

		limited := 0
		for i := range 50 {
			if login(p, "203.0.113.7:40000", fmt.Sprintf("198.51.100.%d", i)) == http.StatusTooManyRequests {
				limited++
			}
		}
		assert.Equal(t, 48, limited)
	})

	t.Run("error - untrusted peer with forged trusted hop", func(t *testing.T) {
		t.Parallel()
		p := newLimitedPortal(t, netip.MustParsePrefix("10.0.0.0/8"))

		for i := range 2 {
			assert.Equal(t, http.StatusUnauthorized, login(p, "203.0.113.7:40000", fmt.Sprintf("198.51.100.%d, 10.0.0.1", i)))
		}
		assert.Equal(t, http.StatusTooManyRequests, login(p, "203.0.113.7:40000", "198.51.100.9, 10.0.0.1"))
	})

	t.Run("success - trusted proxy forwards distinct clients", func(t *testing.T) {
		t.Parallel()
		p := newLimitedPortal(t, netip.MustParsePrefix("10.0.0.0/8"))

		for i := range 5 {
			addr := fmt.Sprintf("198.51.100.%d", i)
			assert.Equal(t, http.StatusUnauthorized, login(p, "10.1.2.3:40000", addr))
			assert.Equal(t, http.StatusUnauthorized, login(p, "10.1.2.3:40000", addr))
			assert.Equal(t, http.StatusTooManyRequests, login(p, "10.1.2.3:40000", addr))
		}
	})

	t.Run("success - trusted proxy chain uses the last untrusted hop", func(t *testing.T) {
		t.Parallel()
		p := newLimitedPortal(t, netip.MustParsePrefix("10.0.0.0/8"))

		// the left-most entry is client supplied and must not split the budget
		assert.Equal(t, http.StatusUnauthorized, login(p, "10.1.2.3:40000", "1.1.1.1, 198.51.100.1, 10.0.0.2"))
		assert.Equal(t, http.StatusUnauthorized, login(p, "10.1.2.3:40000", "2.2.2.2, 198.51.100.1, 10.0.0.2"))
		assert.Equal(t, http.StatusTooManyRequests, login(p, "10.1.2.3:40000", "3.3.3.3, 198.51.100.1, 10.0.0.2"))
	})
}

func TestPortalMessages(t *testing.T) {
	t.Parallel()
	p := newTestPortal(t, nil)
	client := p.createClient(t, "Maria Schmidt", "maria")

	token, _, err := p.sessions.Create(t.Context(), client.ID, models.MethodAccessCode)
	require.NoError(t, err)
	cookie := &http.Cookie{Name: "portal_session", Value: token}

	t.Run("error - unauthenticated", func(t *testing.T) {
		rec := p.do(httptest.NewRequest(http.MethodGet, "/api/portal/messages", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("error - empty body", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/api/portal/messages", map[string]string{"body": "  "})
		req.AddCookie(cookie)
		rec := p.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success - post and list", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/api/portal/messages", map[string]string{"body": "When is launch?"})
		req.AddCookie(cookie)
		rec := p.do(req)
		require.Equal(t, http.StatusCreated, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/portal/messages", nil)
		req.AddCookie(cookie)
		rec = p.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		var out struct {
			Messages []models.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		require.Len(t, out.Messages, 2)
		assert.Equal(t, models.SenderAgency, out.Messages[0].Sender)
		assert.Equal(t, "When is launch?", out.Messages[1].Body)

		assert.Eventually(t, func() bool {
			sent := p.notifier.For(900)
			return len(sent) == 1 && strings.Contains(sent[0], "When is launch?")
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("success - project overview", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/portal/project", nil)
		req.AddCookie(cookie)
		rec := p.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		var overview models.ProjectOverview
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&overview))
		assert.Equal(t, "Website", overview.Project.Name)
		assert.Len(t, overview.Milestones, 2)
	})
}

func TestAdminAPI(t *testing.T) {
	t.Parallel()
	p := newTestPortal(t, nil)

	admin := func(req *http.Request) *http.Request {
		req.Header.Set("Authorization", "Bearer "+adminToken)
		return req
	}

	t.Run("error - missing token", func(t *testing.T) {
		rec := p.do(httptest.NewRequest(http.MethodGet, "/api/admin/clients", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("error - wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/clients", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := p.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("error - empty name", func(t *testing.T) {
		rec := p.do(admin(jsonRequest(http.MethodPost, "/api/admin/clients", map[string]string{"name": " "})))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("error - export without clients", func(t *testing.T) {
		rec := p.do(admin(httptest.NewRequest(http.MethodGet, "/api/admin/clients/export", nil)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("success - create, list and export", func(t *testing.T) {
		rec := p.do(admin(jsonRequest(http.MethodPost, "/api/admin/clients", map[string]string{
			"name": "Maria Schmidt", "company": "Schmidt GmbH",
		})))
		require.Equal(t, http.StatusCreated, rec.Code)

		var created struct {
			Client models.Client `json:"client"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
		assert.Regexp(t, `^MARI-\d{4}$`, created.Client.AccessCode)

		overview, err := p.store.GetProjectOverview(t.Context(), created.Client.ID)
		require.NoError(t, err)
		assert.Len(t, overview.Milestones, 4)

		rec = p.do(admin(httptest.NewRequest(http.MethodGet, "/api/admin/clients", nil)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), created.Client.AccessCode)

		rec = p.do(admin(httptest.NewRequest(http.MethodGet, "/api/admin/clients/export", nil)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

		f, err := excelize.OpenReader(rec.Body)
		require.NoError(t, err)
		defer f.Close()
		code, err := f.GetCellValue("Active", "A2")
		require.NoError(t, err)
		assert.Equal(t, created.Client.AccessCode, code)
	})
}
