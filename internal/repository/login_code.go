package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
)

// ReplaceLoginCode removes every code issued to the same username together with all
// expired codes and inserts the new code. Both steps share one transaction that holds an
// advisory lock on the lower-cased username, so concurrent issues for one username run one
// after the other and a username never holds two valid codes.
func (r *Repository) ReplaceLoginCode(ctx context.Context, code models.LoginCode, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // omitted because checking for errors will not affect the function

	if _, err = tx.Exec(ctx, LockLoginCodeUsernameSQL, code.TelegramUsername); err != nil {
		return fmt.Errorf("failed to lock login codes of username: %w", err)
	}

	if _, err = tx.Exec(ctx, DeleteStaleLoginCodesSQL, code.TelegramUsername, now); err != nil {
		return fmt.Errorf("failed to delete stale login codes: %w", err)
	}

	_, err = tx.Exec(ctx, InsertLoginCodeSQL,
		code.Code, code.TelegramID, code.TelegramUsername, code.FirstName, code.ChatID, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert login code: %w", mapPgErr(err))
	}

	return tx.Commit(ctx)
}

// ConsumeLoginCode flips the consumed flag of a valid code and returns the row.
// The check and the write are one statement, so two concurrent redemptions of the same
// code cannot both succeed.
func (r *Repository) ConsumeLoginCode(ctx context.Context, code string, now time.Time) (models.LoginCode, error) {
	var loginCode models.LoginCode

	err := r.db.QueryRow(ctx, ConsumeLoginCodeSQL, code, now).Scan(
		&loginCode.Code, &loginCode.TelegramID, &loginCode.TelegramUsername, &loginCode.FirstName,
		&loginCode.ChatID, &loginCode.ExpiresAt, &loginCode.Consumed, &loginCode.CreatedAt,
	)
	if err != nil {
		return models.LoginCode{}, fmt.Errorf("failed to consume login code: %w", mapPgErr(err))
	}

	return loginCode, nil
}
