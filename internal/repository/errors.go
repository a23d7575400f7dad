package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation      = "23505"
	accessCodeConstraint = "portal_clients_access_code_key"
)

// mapPgErr translates driver errors into the package sentinels.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == accessCodeConstraint {
			return fmt.Errorf("%w: %w", ErrAccessCodeTaken, err)
		}
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}

	return err
}
