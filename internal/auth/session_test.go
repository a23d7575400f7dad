package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCreate(t *testing.T) {
	t.Parallel()

	t.Run("success - ttl depends on the login method", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		seedAlice(t, e)
		sessions := e.sessions()

		token, expires, err := sessions.Create(t.Context(), "c-alice", models.MethodAccessCode)
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9a-f]{64}$`, token)
		assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), expires)

		_, expires, err = sessions.Create(t.Context(), "c-alice", models.MethodTelegram)
		require.NoError(t, err)
		assert.Equal(t, e.clock.Now().Add(30*24*time.Hour), expires)
	})

	t.Run("error - unknown method", func(t *testing.T) {
		t.Parallel()
		_, _, err := newEnv(t).sessions().Create(t.Context(), "c-alice", "password")
		require.Error(t, err)
	})

	t.Run("success - only the hash is stored", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		seedAlice(t, e)

		token, _, err := e.sessions().Create(t.Context(), "c-alice", models.MethodTelegram)
		require.NoError(t, err)

		_, err = e.store.GetSession(t.Context(), token)
		require.ErrorIs(t, err, repository.ErrNotFound)
		session, err := e.store.GetSession(t.Context(), auth.HashToken(token))
		require.NoError(t, err)
		assert.Equal(t, models.MethodTelegram, session.Method)
	})

	t.Run("success - new login evicts the previous session", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		seedAlice(t, e)
		sessions := e.sessions()

		first, _, err := sessions.Create(t.Context(), "c-alice", models.MethodAccessCode)
		require.NoError(t, err)
		second, _, err := sessions.Create(t.Context(), "c-alice", models.MethodTelegram)
		require.NoError(t, err)

		_, err = sessions.Validate(t.Context(), first)
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
		_, err = sessions.Validate(t.Context(), second)
		require.NoError(t, err)
	})

	t.Run("success - multiple sessions when single session is off", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.cfg.SingleSession = false
		seedAlice(t, e)
		sessions := e.sessions()

		first, _, err := sessions.Create(t.Context(), "c-alice", models.MethodAccessCode)
		require.NoError(t, err)
		_, _, err = sessions.Create(t.Context(), "c-alice", models.MethodAccessCode)
		require.NoError(t, err)

		_, err = sessions.Validate(t.Context(), first)
		require.NoError(t, err)
	})
}

func TestSessionValidate(t *testing.T) {
	t.Parallel()

	t.Run("error - empty and unknown tokens", func(t *testing.T) {
		t.Parallel()
		sessions := newEnv(t).sessions()

		_, err := sessions.Validate(t.Context(), "")
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
		_, err = sessions.Validate(t.Context(), "never-issued")
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("error - expired session", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		seedAlice(t, e)
		sessions := e.sessions()

		token, _, err := sessions.Create(t.Context(), "c-alice", models.MethodAccessCode)
		require.NoError(t, err)

		e.clock.Advance(7*24*time.Hour - time.Second)
		_, err = sessions.Validate(t.Context(), token)
		require.NoError(t, err)

		e.clock.Advance(time.Second)
		_, err = sessions.Validate(t.Context(), token)
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("error - destroyed session", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		seedAlice(t, e)
		sessions := e.sessions()

		token, _, err := sessions.Create(t.Context(), "c-alice", models.MethodAccessCode)
		require.NoError(t, err)

		require.NoError(t, sessions.Destroy(t.Context(), token))
		require.NoError(t, sessions.Destroy(t.Context(), token))
		_, err = sessions.Validate(t.Context(), token)
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("error - inactive client", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.store.CreateClient(t.Context(), models.NewClient{Client: models.Client{
			ID: "c-1", Name: "Old", AccessCode: "OLD-1000", Status: models.ClientInactive,
		}})
		require.NoError(t, err)
		sessions := e.sessions()

		token, _, err := sessions.Create(t.Context(), "c-1", models.MethodAccessCode)
		require.NoError(t, err)

		_, err = sessions.Validate(t.Context(), token)
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("success - resolves the owning client", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		seedAlice(t, e)
		sessions := e.sessions()

		token, _, err := sessions.Create(t.Context(), "c-alice", models.MethodTelegram)
		require.NoError(t, err)

		client, err := sessions.Validate(t.Context(), token)
		require.NoError(t, err)
		assert.Equal(t, "c-alice", client.ID)
	})
}

func TestLoginWithAccessCode(t *testing.T) {
	t.Parallel()

	t.Run("error - unknown code", func(t *testing.T) {
		t.Parallel()
		_, err := newEnv(t).sessions().LoginWithAccessCode(t.Context(), "NOPE-0000")
		require.ErrorIs(t, err, auth.ErrInvalidOrExpired)
	})

	t.Run("error - empty code", func(t *testing.T) {
		t.Parallel()
		_, err := newEnv(t).sessions().LoginWithAccessCode(t.Context(), "  ")
		require.ErrorIs(t, err, auth.ErrInvalidOrExpired)
	})

	t.Run("success - input is normalised", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		seedAlice(t, e)

		client, err := e.sessions().LoginWithAccessCode(t.Context(), "  alic-1000\n")
		require.NoError(t, err)
		assert.Equal(t, "c-alice", client.ID)

		stored, err := e.store.GetClientByID(t.Context(), "c-alice")
		require.NoError(t, err)
		require.NotNil(t, stored.LastLoginAt)
	})
}

func TestSessionCookies(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.cfg.SecureCookie = true
	sessions := e.sessions()

	rec := httptest.NewRecorder()
	sessions.SetCookie(rec, "token-value", e.clock.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "portal_session", cookie.Name)
	assert.Equal(t, "token-value", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "token-value"})
	assert.Equal(t, "token-value", sessions.TokenFromRequest(req))
	assert.Empty(t, sessions.TokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))

	rec = httptest.NewRecorder()
	sessions.ClearCookie(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.Negative(t, cleared[0].MaxAge)
}
