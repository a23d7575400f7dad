package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
	"github.com/google/uuid"
)

const (
	prefixLength   = 4
	fallbackPrefix = "CLNT"
	base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// AccessCodeIssuer generates access codes like MARI-4821 and creates clients with them.
type AccessCodeIssuer struct {
	log     *slog.Logger
	store   repository.ClientManager
	metrics *metrics.Metrics
	style   string
	tries   int
	opts    options
}

// NewAccessCodeIssuer creates an issuer backed by the given client store.
func NewAccessCodeIssuer(
	log *slog.Logger,
	store repository.ClientManager,
	m *metrics.Metrics,
	cfg Config,
	opts ...Option,
) *AccessCodeIssuer {
	tries := cfg.AccessCodeAttempts
	if tries <= 0 {
		tries = DefaultConfig().AccessCodeAttempts
	}
	style := cfg.AccessCodeStyle
	if style != StyleBase36 {
		style = StyleNumeric
	}

	return &AccessCodeIssuer{
		log:     log.With(slog.String("component", "access_code_issuer")),
		store:   store,
		metrics: m,
		style:   style,
		tries:   tries,
		opts:    buildOptions(opts),
	}
}

// Prefix derives the human-readable part of an access code from a display name:
// the first word, upper-cased, reduced to ASCII letters and digits, at most 4 characters.
func Prefix(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return fallbackPrefix
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(words[0]) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == prefixLength {
				break
			}
		}
	}
	if b.Len() == 0 {
		return fallbackPrefix
	}
	return b.String()
}

// Issue returns a fresh candidate code for the name. Uniqueness is only established by
// the store when the client is inserted.
func (i *AccessCodeIssuer) Issue(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}

	suffix, err := i.suffix()
	if err != nil {
		return "", fmt.Errorf("failed to generate access code suffix: %w", err)
	}
	return Prefix(name) + "-" + suffix, nil
}

func (i *AccessCodeIssuer) suffix() (string, error) {
	if i.style == StyleBase36 {
		var b strings.Builder
		for range 4 {
			idx, err := randomInt(i.opts.random, 0, int64(len(base36Alphabet)-1))
			if err != nil {
				return "", err
			}
			b.WriteByte(base36Alphabet[idx])
		}
		return b.String(), nil
	}

	n, err := randomInt(i.opts.random, 1000, 9999)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// CreateClient assigns an access code to the client and stores it together with its
// onboarding rows. A collision on the code triggers a new candidate until the attempt
// budget is spent, which yields ErrAttemptsExhausted.
func (i *AccessCodeIssuer) CreateClient(ctx context.Context, newClient models.NewClient) (models.Client, error) {
	newClient.Client.Name = strings.TrimSpace(newClient.Client.Name)
	if newClient.Client.Name == "" {
		return models.Client{}, ErrEmptyName
	}
	if newClient.Client.ID == "" {
		newClient.Client.ID = uuid.NewString()
	}
	if newClient.Client.Status == "" {
		newClient.Client.Status = models.ClientActive
	}
	if newClient.Client.CreatedAt.IsZero() {
		newClient.Client.CreatedAt = i.opts.now().UTC()
	}
	newClient.Client.TelegramUsername = strings.TrimPrefix(strings.TrimSpace(newClient.Client.TelegramUsername), "@")

	for attempt := 1; attempt <= i.tries; attempt++ {
		code, err := i.Issue(newClient.Client.Name)
		if err != nil {
			return models.Client{}, err
		}
		newClient.Client.AccessCode = code

		client, err := i.store.CreateClient(ctx, newClient)
		if errors.Is(err, repository.ErrAccessCodeTaken) {
			i.metrics.AccessCodeCollisions.Inc()
			i.log.DebugContext(ctx, "access code collision", "code", code, "attempt", attempt)
			continue
		}
		if err != nil {
			return models.Client{}, fmt.Errorf("failed to create client: %w", err)
		}

		i.log.InfoContext(ctx, "client created", "client_id", client.ID, "attempts", attempt)
		return client, nil
	}

	i.log.ErrorContext(ctx, "access code attempts exhausted", "name", newClient.Client.Name, "attempts", i.tries)
	return models.Client{}, fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, i.tries)
}
