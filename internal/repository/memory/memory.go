// Package memory provides an in-process repository.Store used for local runs and tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
	"github.com/google/uuid"
)

// Store keeps every table in maps guarded by a single mutex.
type Store struct {
	mu         sync.Mutex
	clients    map[string]models.Client
	byCode     map[string]string
	codes      []models.LoginCode
	sessions   map[string]models.Session
	projects   map[string]models.Project
	milestones map[string][]models.Milestone
	messages   map[string][]models.Message
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		clients:    make(map[string]models.Client),
		byCode:     make(map[string]string),
		sessions:   make(map[string]models.Session),
		projects:   make(map[string]models.Project),
		milestones: make(map[string][]models.Milestone),
		messages:   make(map[string][]models.Message),
	}
}

// CreateClient stores the client together with its optional onboarding project.
func (s *Store) CreateClient(_ context.Context, newClient models.NewClient) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := newClient.Client
	if _, taken := s.byCode[client.AccessCode]; taken {
		return models.Client{}, repository.ErrAccessCodeTaken
	}
	if _, exists := s.clients[client.ID]; exists {
		return models.Client{}, repository.ErrDuplicate
	}

	s.clients[client.ID] = client
	s.byCode[client.AccessCode] = client.ID

	if onboarding := newClient.Onboarding; onboarding != nil {
		project := onboarding.Project
		if project.ID == "" {
			project.ID = uuid.NewString()
		}
		project.ClientID = client.ID
		project.CreatedAt = client.CreatedAt
		s.projects[client.ID] = project

		if onboarding.WelcomeMessage != "" {
			s.messages[client.ID] = append(s.messages[client.ID], models.Message{
				ID:        uuid.NewString(),
				ClientID:  client.ID,
				Sender:    models.SenderAgency,
				Body:      onboarding.WelcomeMessage,
				CreatedAt: client.CreatedAt,
			})
		}

		milestones := make([]models.Milestone, 0, len(onboarding.Milestones))
		for idx, title := range onboarding.Milestones {
			milestones = append(milestones, models.Milestone{
				ID:        uuid.NewString(),
				ProjectID: project.ID,
				Title:     title,
				Position:  idx + 1,
			})
		}
		s.milestones[project.ID] = milestones
	}

	return client, nil
}

// GetClientByID returns repository.ErrNotFound for an unknown id.
func (s *Store) GetClientByID(_ context.Context, id string) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok {
		return models.Client{}, repository.ErrNotFound
	}
	return client, nil
}

// GetClientByAccessCode looks the code up case-insensitively.
func (s *Store) GetClientByAccessCode(_ context.Context, code string) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return models.Client{}, repository.ErrNotFound
	}
	return s.clients[id], nil
}

// GetClientByTelegramUsername returns the oldest client registered under the username.
func (s *Store) GetClientByTelegramUsername(_ context.Context, username string) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found models.Client
		ok    bool
	)
	for _, client := range s.clients {
		if client.TelegramUsername == "" || !strings.EqualFold(client.TelegramUsername, username) {
			continue
		}
		if !ok || client.CreatedAt.Before(found.CreatedAt) {
			found, ok = client, true
		}
	}
	if !ok {
		return models.Client{}, repository.ErrNotFound
	}
	return found, nil
}

// RecordLogin stamps the last login and stores a non-zero Telegram id.
func (s *Store) RecordLogin(_ context.Context, clientID string, telegramID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		return repository.ErrNotFound
	}
	if telegramID != 0 {
		client.TelegramID = telegramID
	}
	client.LastLoginAt = &at
	s.clients[clientID] = client
	return nil
}

// ListClients returns all clients, newest first.
func (s *Store) ListClients(_ context.Context) ([]models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := make([]models.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	slices.SortFunc(clients, func(a, b models.Client) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return clients, nil
}

// ReplaceLoginCode stores code and drops the pending codes of the same username.
func (s *Store) ReplaceLoginCode(_ context.Context, code models.LoginCode, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := func(c models.LoginCode) bool {
		return strings.EqualFold(c.TelegramUsername, code.TelegramUsername) || !c.ExpiresAt.After(now)
	}
	// nothing is deleted when the insert would fail
	for _, c := range s.codes {
		if !stale(c) && c.Code == code.Code && !c.Consumed {
			return repository.ErrDuplicate
		}
	}
	s.codes = slices.DeleteFunc(s.codes, stale)

	code.Consumed = false
	s.codes = append(s.codes, code)
	return nil
}

// ConsumeLoginCode marks an unexpired code as used and returns it, at most once.
func (s *Store) ConsumeLoginCode(_ context.Context, code string, now time.Time) (models.LoginCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx := range s.codes {
		c := &s.codes[idx]
		if c.Code == code && c.IsValid(now) {
			c.Consumed = true
			return *c, nil
		}
	}
	return models.LoginCode{}, repository.ErrNotFound
}

// CreateSession stores the session, optionally evicting the other sessions of its client.
func (s *Store) CreateSession(_ context.Context, session models.Session, evictExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.TokenHash]; exists {
		return repository.ErrDuplicate
	}
	if evictExisting {
		for hash, existing := range s.sessions {
			if existing.ClientID == session.ClientID {
				delete(s.sessions, hash)
			}
		}
	}
	s.sessions[session.TokenHash] = session
	return nil
}

// GetSession returns the session stored under the token hash.
func (s *Store) GetSession(_ context.Context, tokenHash string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return models.Session{}, repository.ErrNotFound
	}
	return session, nil
}

// DeleteSession removes the session, unknown hashes are ignored.
func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tokenHash)
	return nil
}

// DeleteExpiredSessions removes sessions expired at now and reports how many.
func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for hash, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, hash)
			deleted++
		}
	}
	return deleted, nil
}

// GetProjectOverview returns the latest project of the client with its milestones.
func (s *Store) GetProjectOverview(_ context.Context, clientID string) (models.ProjectOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[clientID]
	if !ok {
		return models.ProjectOverview{}, repository.ErrNotFound
	}
	return models.ProjectOverview{
		Project:    project,
		Milestones: append([]models.Milestone{}, s.milestones[project.ID]...),
	}, nil
}

// ListMessages returns the client messages, oldest first.
func (s *Store) ListMessages(_ context.Context, clientID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Message{}, s.messages[clientID]...), nil
}

// AddMessage appends a message to the client conversation.
func (s *Store) AddMessage(_ context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[msg.ClientID]; !ok {
		return repository.ErrNotFound
	}
	s.messages[msg.ClientID] = append(s.messages[msg.ClientID], msg)
	return nil
}
