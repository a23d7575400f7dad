package repository_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceLoginCode(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	code := models.LoginCode{
		Code:             "482913",
		TelegramID:       111,
		TelegramUsername: "alice",
		FirstName:        "Alice",
		ChatID:           111,
		ExpiresAt:        now.Add(5 * time.Minute),
		CreatedAt:        now,
	}
	insertArgs := []any{code.Code, code.TelegramID, code.TelegramUsername, code.FirstName, code.ChatID,
		code.ExpiresAt, code.CreatedAt}

	t.Run("error - failed to lock username", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(repository.LockLoginCodeUsernameSQL)).
			WithArgs("alice").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err = repo.ReplaceLoginCode(ctx, code, now)

		require.ErrorIs(t, err, assert.AnError)
		require.ErrorContains(t, err, "failed to lock login codes of username")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - failed to delete stale codes", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(repository.LockLoginCodeUsernameSQL)).
			WithArgs("alice").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec(regexp.QuoteMeta(repository.DeleteStaleLoginCodesSQL)).
			WithArgs("alice", now).
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err = repo.ReplaceLoginCode(ctx, code, now)

		require.ErrorIs(t, err, assert.AnError)
		require.ErrorContains(t, err, "failed to delete stale login codes")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - code collides with a valid code", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(repository.LockLoginCodeUsernameSQL)).
			WithArgs("alice").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec(regexp.QuoteMeta(repository.DeleteStaleLoginCodesSQL)).
			WithArgs("alice", now).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(regexp.QuoteMeta(repository.InsertLoginCodeSQL)).
			WithArgs(insertArgs...).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "login_codes_active_code_idx"})
		mock.ExpectRollback()

		err = repo.ReplaceLoginCode(ctx, code, now)

		require.ErrorIs(t, err, repository.ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - replace code", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(repository.LockLoginCodeUsernameSQL)).
			WithArgs("alice").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec(regexp.QuoteMeta(repository.DeleteStaleLoginCodesSQL)).
			WithArgs("alice", now).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectExec(regexp.QuoteMeta(repository.InsertLoginCodeSQL)).
			WithArgs(insertArgs...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err = repo.ReplaceLoginCode(ctx, code, now)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConsumeLoginCode(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{
		"code", "telegram_id", "telegram_username", "first_name", "chat_id", "expires_at", "consumed", "created_at",
	}

	t.Run("error - invalid or expired code", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery(regexp.QuoteMeta(repository.ConsumeLoginCodeSQL)).
			WithArgs("482913", now).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.ConsumeLoginCode(ctx, "482913", now)

		require.ErrorIs(t, err, repository.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - consume code", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery(regexp.QuoteMeta(repository.ConsumeLoginCodeSQL)).
			WithArgs("482913", now).
			WillReturnRows(pgxmock.NewRows(columns).AddRow(
				"482913", int64(111), "alice", "Alice", int64(111), now.Add(5*time.Minute), true, now,
			))

		code, err := repo.ConsumeLoginCode(ctx, "482913", now)

		require.NoError(t, err)
		assert.True(t, code.Consumed)
		assert.Equal(t, "alice", code.TelegramUsername)
		assert.Equal(t, int64(111), code.ChatID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
