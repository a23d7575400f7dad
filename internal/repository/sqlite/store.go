package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/google/uuid"
)

const clientColumns = `id, name, email, company, phone, telegram_username, telegram_id,
	access_code, status, last_login_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (models.Client, error) {
	var (
		c         models.Client
		lastLogin sql.NullInt64
		createdAt int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &c.Phone, &c.TelegramUsername, &c.TelegramID,
		&c.AccessCode, &c.Status, &lastLogin, &createdAt)
	if err != nil {
		return models.Client{}, err
	}
	c.LastLoginAt = nullableTime(lastLogin)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

// CreateClient stores the client together with its optional onboarding project.
func (s *Store) CreateClient(ctx context.Context, newClient models.NewClient) (models.Client, error) {
	client := newClient.Client

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO portal_clients(id, name, email, company, phone, telegram_username, telegram_id, access_code, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID, client.Name, client.Email, client.Company, client.Phone, client.TelegramUsername,
		client.TelegramID, client.AccessCode, client.Status, toMillis(client.CreatedAt),
	)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to insert client: %w", mapErr(err))
	}

	if onboarding := newClient.Onboarding; onboarding != nil {
		if err = insertOnboarding(ctx, tx, client, onboarding); err != nil {
			return models.Client{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Client{}, fmt.Errorf("failed to commit client: %w", err)
	}
	return client, nil
}

func insertOnboarding(ctx context.Context, tx *sql.Tx, client models.Client, onboarding *models.Onboarding) error {
	project := onboarding.Project
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	created := toMillis(client.CreatedAt)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO portal_projects(id, client_id, name, status, progress, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		project.ID, client.ID, project.Name, project.Status, project.Progress, created)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", mapErr(err))
	}

	if onboarding.WelcomeMessage != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO portal_messages(id, client_id, sender, body, created_at) VALUES(?, ?, ?, ?, ?)`,
			uuid.NewString(), client.ID, models.SenderAgency, onboarding.WelcomeMessage, created)
		if err != nil {
			return fmt.Errorf("failed to insert welcome message: %w", mapErr(err))
		}
	}

	for idx, title := range onboarding.Milestones {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO portal_milestones(id, project_id, title, position) VALUES(?, ?, ?, ?)`,
			uuid.NewString(), project.ID, title, idx+1)
		if err != nil {
			return fmt.Errorf("failed to insert milestone %q: %w", title, mapErr(err))
		}
	}
	return nil
}

// GetClientByID returns repository.ErrNotFound for an unknown id.
func (s *Store) GetClientByID(ctx context.Context, id string) (models.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM portal_clients WHERE id = ?`, id)
	client, err := scanClient(row)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client: %w", mapErr(err))
	}
	return client, nil
}

// GetClientByAccessCode looks the code up case-insensitively.
func (s *Store) GetClientByAccessCode(ctx context.Context, code string) (models.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM portal_clients WHERE access_code = ?`, code)
	client, err := scanClient(row)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client: %w", mapErr(err))
	}
	return client, nil
}

// GetClientByTelegramUsername returns the oldest client registered under the username.
func (s *Store) GetClientByTelegramUsername(ctx context.Context, username string) (models.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM portal_clients
WHERE telegram_username <> '' AND telegram_username = ? COLLATE NOCASE
ORDER BY created_at LIMIT 1`, username)
	client, err := scanClient(row)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client: %w", mapErr(err))
	}
	return client, nil
}

// RecordLogin stamps the last login and stores a non-zero Telegram id.
func (s *Store) RecordLogin(ctx context.Context, clientID string, telegramID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE portal_clients
SET last_login_at = ?, telegram_id = CASE WHEN ? <> 0 THEN ? ELSE telegram_id END
WHERE id = ?`, toMillis(at), telegramID, telegramID, clientID)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed to record login: %w", mapErr(sql.ErrNoRows))
	}
	return nil
}

// ListClients returns all clients, newest first.
func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM portal_clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("error querying clients: %w", err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		client, scanErr := scanClient(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("error scanning client row: %w", scanErr)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// ReplaceLoginCode stores code and drops the pending codes of the same username.
func (s *Store) ReplaceLoginCode(ctx context.Context, code models.LoginCode, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM login_codes WHERE telegram_username = ? COLLATE NOCASE OR expires_at <= ?`,
		code.TelegramUsername, toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to delete stale login codes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO login_codes(code, telegram_id, telegram_username, first_name, chat_id, expires_at, consumed, created_at)
VALUES(?, ?, ?, ?, ?, ?, 0, ?)`,
		code.Code, code.TelegramID, code.TelegramUsername, code.FirstName, code.ChatID,
		toMillis(code.ExpiresAt), toMillis(code.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert login code: %w", mapErr(err))
	}

	return tx.Commit()
}

// ConsumeLoginCode marks an unexpired code as used and returns it, at most once.
func (s *Store) ConsumeLoginCode(ctx context.Context, code string, now time.Time) (models.LoginCode, error) {
	var (
		lc                   models.LoginCode
		expiresAt, createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
UPDATE login_codes SET consumed = 1
WHERE code = ? AND consumed = 0 AND expires_at > ?
RETURNING code, telegram_id, telegram_username, first_name, chat_id, expires_at, created_at`,
		code, toMillis(now)).Scan(
		&lc.Code, &lc.TelegramID, &lc.TelegramUsername, &lc.FirstName, &lc.ChatID, &expiresAt, &createdAt,
	)
	if err != nil {
		return models.LoginCode{}, fmt.Errorf("failed to consume login code: %w", mapErr(err))
	}
	lc.Consumed = true
	lc.ExpiresAt = fromMillis(expiresAt)
	lc.CreatedAt = fromMillis(createdAt)
	return lc, nil
}

// CreateSession stores the session, optionally evicting the other sessions of its client.
func (s *Store) CreateSession(ctx context.Context, session models.Session, evictExisting bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if evictExisting {
		if _, err = tx.ExecContext(ctx, `DELETE FROM portal_sessions WHERE client_id = ?`, session.ClientID); err != nil {
			return fmt.Errorf("failed to evict sessions of client %s: %w", session.ClientID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO portal_sessions(token_hash, client_id, method, expires_at, created_at) VALUES(?, ?, ?, ?, ?)`,
		session.TokenHash, session.ClientID, session.Method, toMillis(session.ExpiresAt), toMillis(session.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", mapErr(err))
	}
	return tx.Commit()
}

// GetSession returns the session stored under the token hash.
func (s *Store) GetSession(ctx context.Context, tokenHash string) (models.Session, error) {
	var (
		session              models.Session
		expiresAt, createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token_hash, client_id, method, expires_at, created_at FROM portal_sessions WHERE token_hash = ?`,
		tokenHash).Scan(&session.TokenHash, &session.ClientID, &session.Method, &expiresAt, &createdAt)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to get session: %w", mapErr(err))
	}
	session.ExpiresAt = fromMillis(expiresAt)
	session.CreatedAt = fromMillis(createdAt)
	return session, nil
}

// DeleteSession removes the session, unknown hashes are ignored.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM portal_sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions expired at now and reports how many.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM portal_sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// GetProjectOverview returns the latest project of the client with its milestones.
func (s *Store) GetProjectOverview(ctx context.Context, clientID string) (models.ProjectOverview, error) {
	var (
		overview  models.ProjectOverview
		createdAt int64
	)
	p := &overview.Project
	err := s.db.QueryRowContext(ctx, `
SELECT id, client_id, name, status, progress, created_at FROM portal_projects
WHERE client_id = ? ORDER BY created_at DESC LIMIT 1`, clientID).
		Scan(&p.ID, &p.ClientID, &p.Name, &p.Status, &p.Progress, &createdAt)
	if err != nil {
		return models.ProjectOverview{}, fmt.Errorf("failed to get project: %w", mapErr(err))
	}
	p.CreatedAt = fromMillis(createdAt)

	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, title, position, completed, completed_at FROM portal_milestones
WHERE project_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return models.ProjectOverview{}, fmt.Errorf("error querying milestones: %w", err)
	}
	defer rows.Close()

	overview.Milestones = []models.Milestone{}
	for rows.Next() {
		var (
			m           models.Milestone
			completedAt sql.NullInt64
		)
		if err = rows.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Position, &m.Completed, &completedAt); err != nil {
			return models.ProjectOverview{}, fmt.Errorf("error scanning milestone row: %w", err)
		}
		m.CompletedAt = nullableTime(completedAt)
		overview.Milestones = append(overview.Milestones, m)
	}
	return overview, rows.Err()
}

// ListMessages returns the client messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, clientID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, client_id, sender, body, created_at FROM portal_messages
WHERE client_id = ? ORDER BY created_at, rowid`, clientID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg       models.Message
			createdAt int64
		)
		if err = rows.Scan(&msg.ID, &msg.ClientID, &msg.Sender, &msg.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AddMessage appends a message to the client conversation.
func (s *Store) AddMessage(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO portal_messages(id, client_id, sender, body, created_at) VALUES(?, ?, ?, ?, ?)`,
		msg.ID, msg.ClientID, msg.Sender, msg.Body, toMillis(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", mapErr(err))
	}
	return nil
}
