package sqlite_test

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
	"github.com/UnknownOlympus/janus/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.Open(t.Context(), filepath.Join(t.TempDir(), "janus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedClient(t *testing.T, store *sqlite.Store) models.Client {
	t.Helper()

	client := models.Client{
		ID:               "c-1",
		Name:             "Maria Schmidt",
		TelegramUsername: "Alice",
		AccessCode:       "MARI-4821",
		Status:           models.ClientActive,
		CreatedAt:        now,
	}
	_, err := store.CreateClient(t.Context(), models.NewClient{
		Client: client,
		Onboarding: &models.Onboarding{
			Project:        models.Project{Name: "Website", Status: "planning"},
			WelcomeMessage: "Welcome aboard!",
			Milestones:     []string{"Kickoff", "Design", "Launch"},
		},
	})
	require.NoError(t, err)
	return client
}

func TestOpen_EmptyPath(t *testing.T) {
	t.Parallel()
	_, err := sqlite.Open(t.Context(), "")
	require.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "janus.db")

	store, err := sqlite.Open(t.Context(), path)
	require.NoError(t, err)
	seedClient(t, store)
	require.NoError(t, store.Close())

	store, err = sqlite.Open(t.Context(), path)
	require.NoError(t, err)
	defer store.Close()

	client, err := store.GetClientByAccessCode(t.Context(), "MARI-4821")
	require.NoError(t, err)
	assert.Equal(t, "c-1", client.ID)
	assert.True(t, client.CreatedAt.Equal(now))
}

func TestClients(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openStore(t)
	client := seedClient(t, store)

	dup := client
	dup.ID = "c-2"
	_, err := store.CreateClient(ctx, models.NewClient{Client: dup})
	require.ErrorIs(t, err, repository.ErrAccessCodeTaken)

	found, err := store.GetClientByTelegramUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, client.ID, found.ID)
	assert.Nil(t, found.LastLoginAt)

	require.NoError(t, store.RecordLogin(ctx, client.ID, 111, now.Add(time.Minute)))
	found, err = store.GetClientByID(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(111), found.TelegramID)
	require.NotNil(t, found.LastLoginAt)

	require.ErrorIs(t, store.RecordLogin(ctx, "missing", 0, now), repository.ErrNotFound)

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestLoginCodes(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openStore(t)

	code := models.LoginCode{
		Code: "482913", TelegramID: 111, TelegramUsername: "alice", FirstName: "Alice", ChatID: 111,
		ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now,
	}
	require.NoError(t, store.ReplaceLoginCode(ctx, code, now))

	other := code
	other.TelegramUsername = "bob"
	require.ErrorIs(t, store.ReplaceLoginCode(ctx, other, now), repository.ErrDuplicate)

	_, err := store.ConsumeLoginCode(ctx, "482913", now.Add(5*time.Minute+time.Second))
	require.ErrorIs(t, err, repository.ErrNotFound)

	consumed, err := store.ConsumeLoginCode(ctx, "482913", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, consumed.Consumed)
	assert.Equal(t, "Alice", consumed.FirstName)

	_, err = store.ConsumeLoginCode(ctx, "482913", now.Add(time.Minute))
	require.ErrorIs(t, err, repository.ErrNotFound)

	replacement := code
	replacement.Code = "111111"
	require.NoError(t, store.ReplaceLoginCode(ctx, replacement, now))
	second := code
	second.Code = "222222"
	second.TelegramUsername = "ALICE"
	require.NoError(t, store.ReplaceLoginCode(ctx, second, now))
	_, err = store.ConsumeLoginCode(ctx, "111111", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLoginCodes_ConcurrentReplace(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openStore(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.ReplaceLoginCode(ctx, models.LoginCode{
				Code: fmt.Sprintf("7000%02d", i), TelegramID: 333, TelegramUsername: "carol", ChatID: 333,
				ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now,
			}, now)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	valid := 0
	for i := range workers {
		if _, err := store.ConsumeLoginCode(ctx, fmt.Sprintf("7000%02d", i), now); err == nil {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestSessions(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openStore(t)
	client := seedClient(t, store)

	first := models.Session{
		TokenHash: "first", ClientID: client.ID, Method: models.MethodTelegram,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	require.NoError(t, store.CreateSession(ctx, first, false))

	second := first
	second.TokenHash = "second"
	require.NoError(t, store.CreateSession(ctx, second, true))

	_, err := store.GetSession(ctx, "first")
	require.ErrorIs(t, err, repository.ErrNotFound)

	got, err := store.GetSession(ctx, "second")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(second.ExpiresAt))

	deleted, err := store.DeleteExpiredSessions(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	require.NoError(t, store.DeleteSession(ctx, "second"))
}

func TestPortal(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openStore(t)
	client := seedClient(t, store)

	overview, err := store.GetProjectOverview(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Website", overview.Project.Name)
	require.Len(t, overview.Milestones, 3)
	assert.Equal(t, "Design", overview.Milestones[1].Title)

	require.NoError(t, store.AddMessage(ctx, models.Message{
		ID: "m-2", ClientID: client.ID, Sender: models.SenderClient, Body: "Thanks", CreatedAt: now.Add(time.Minute),
	}))

	messages, err := store.ListMessages(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Thanks", messages[1].Body)

	_, err = store.GetProjectOverview(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
