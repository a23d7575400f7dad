package repository

import (
	"context"
	"errors"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAccessCodeTaken is returned when a client insert collides on the unique access code.
	ErrAccessCodeTaken = errors.New("access code is already taken")
	// ErrDuplicate is returned for every other unique constraint violation.
	ErrDuplicate = errors.New("record already exists")
)

// ClientManager defines the operations on portal clients.
type ClientManager interface {
	// CreateClient persists the client and its onboarding rows in a single transaction.
	CreateClient(ctx context.Context, client models.NewClient) (models.Client, error)
	GetClientByID(ctx context.Context, id string) (models.Client, error)
	GetClientByAccessCode(ctx context.Context, code string) (models.Client, error)
	// GetClientByTelegramUsername matches the username case-insensitively.
	GetClientByTelegramUsername(ctx context.Context, username string) (models.Client, error)
	// RecordLogin stores the last login time and, when telegramID is not zero, the Telegram ID.
	RecordLogin(ctx context.Context, clientID string, telegramID int64, at time.Time) error
	ListClients(ctx context.Context) ([]models.Client, error)
}

// CodeManager defines the operations on Telegram login codes.
type CodeManager interface {
	// ReplaceLoginCode deletes every code of the same username and every expired code,
	// then inserts the new one.
	ReplaceLoginCode(ctx context.Context, code models.LoginCode, now time.Time) error
	// ConsumeLoginCode marks a valid code as consumed in one conditional write and returns it.
	ConsumeLoginCode(ctx context.Context, code string, now time.Time) (models.LoginCode, error)
}

// SessionStorage defines the operations on portal sessions.
type SessionStorage interface {
	// CreateSession inserts the session, removing the client's other sessions first when evictExisting is set.
	CreateSession(ctx context.Context, session models.Session, evictExisting bool) error
	GetSession(ctx context.Context, tokenHash string) (models.Session, error)
	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// PortalManager defines the read and write operations behind the customer portal pages.
type PortalManager interface {
	GetProjectOverview(ctx context.Context, clientID string) (models.ProjectOverview, error)
	ListMessages(ctx context.Context, clientID string) ([]models.Message, error)
	AddMessage(ctx context.Context, msg models.Message) error
}

// Store is the full set of operations a storage backend provides.
type Store interface {
	ClientManager
	CodeManager
	SessionStorage
	PortalManager
}

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	db Database
}

// NewRepository creates a new instance of Repository with the provided Database.
// It returns a pointer to the newly created Repository.
func NewRepository(db Database) *Repository {
	return &Repository{db: db}
}
