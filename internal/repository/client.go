package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateClient inserts the client and, when onboarding is present, its default project,
// welcome message and milestones. Everything is committed together or not at all.
// A collision on the access code is reported as ErrAccessCodeTaken.
func (r *Repository) CreateClient(ctx context.Context, newClient models.NewClient) (models.Client, error) {
	client := newClient.Client

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // omitted because checking for errors will not affect the function

	_, err = tx.Exec(ctx, InsertClientSQL,
		client.ID, client.Name, client.Email, client.Company, client.Phone,
		client.TelegramUsername, client.TelegramID, client.AccessCode, client.Status, client.CreatedAt,
	)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to insert client: %w", mapPgErr(err))
	}

	if newClient.Onboarding != nil {
		if err = insertOnboarding(ctx, tx, client, newClient.Onboarding); err != nil {
			return models.Client{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Client{}, fmt.Errorf("failed to commit client: %w", err)
	}

	return client, nil
}

func insertOnboarding(ctx context.Context, tx pgx.Tx, client models.Client, onboarding *models.Onboarding) error {
	project := onboarding.Project
	if project.ID == "" {
		project.ID = uuid.NewString()
	}

	_, err := tx.Exec(ctx, InsertProjectSQL,
		project.ID, client.ID, project.Name, project.Status, project.Progress, client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", mapPgErr(err))
	}

	if onboarding.WelcomeMessage != "" {
		_, err = tx.Exec(ctx, InsertMessageSQL,
			uuid.NewString(), client.ID, models.SenderAgency, onboarding.WelcomeMessage, client.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert welcome message: %w", mapPgErr(err))
		}
	}

	for idx, title := range onboarding.Milestones {
		_, err = tx.Exec(ctx, InsertMilestoneSQL, uuid.NewString(), project.ID, title, idx+1)
		if err != nil {
			return fmt.Errorf("failed to insert milestone %q: %w", title, mapPgErr(err))
		}
	}

	return nil
}

// GetClientByID retrieves a client by its identifier.
func (r *Repository) GetClientByID(ctx context.Context, id string) (models.Client, error) {
	client, err := scanClient(r.db.QueryRow(ctx, SelectClientByIDSQL, id))
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client by id: %w", err)
	}
	return client, nil
}

// GetClientByAccessCode retrieves a client by its exact access code.
func (r *Repository) GetClientByAccessCode(ctx context.Context, code string) (models.Client, error) {
	client, err := scanClient(r.db.QueryRow(ctx, SelectClientByAccessCodeSQL, code))
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client by access code: %w", err)
	}
	return client, nil
}

// GetClientByTelegramUsername retrieves the oldest client whose Telegram username matches
// case-insensitively.
func (r *Repository) GetClientByTelegramUsername(ctx context.Context, username string) (models.Client, error) {
	client, err := scanClient(r.db.QueryRow(ctx, SelectClientByTelegramUsernameSQL, username))
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client by telegram username: %w", err)
	}
	return client, nil
}

// RecordLogin updates the last login timestamp and, if telegramID is set, the Telegram ID.
func (r *Repository) RecordLogin(ctx context.Context, clientID string, telegramID int64, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx, UpdateClientLoginSQL, clientID, telegramID, at)
	if err != nil {
		return fmt.Errorf("failed to record login of client %s: %w", clientID, mapPgErr(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListClients returns all clients, newest first.
func (r *Repository) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := r.db.Query(ctx, SelectClientsSQL)
	if err != nil {
		return nil, fmt.Errorf("error querying clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		client, errScan := scanClient(rows)
		if errScan != nil {
			return nil, fmt.Errorf("error scanning client row: %w", errScan)
		}
		clients = append(clients, client)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterating client rows: %w", err)
	}

	return clients, nil
}

func scanClient(row pgx.Row) (models.Client, error) {
	var (
		client    models.Client
		lastLogin pgtype.Timestamptz
	)

	err := row.Scan(
		&client.ID, &client.Name, &client.Email, &client.Company, &client.Phone,
		&client.TelegramUsername, &client.TelegramID, &client.AccessCode, &client.Status,
		&lastLogin, &client.CreatedAt,
	)
	if err != nil {
		return models.Client{}, mapPgErr(err)
	}

	if lastLogin.Valid {
		at := lastLogin.Time
		client.LastLoginAt = &at
	}

	return client, nil
}
