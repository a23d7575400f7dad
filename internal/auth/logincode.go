package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/UnknownOlympus/janus/internal/repository"
)

const (
	loginCodeLength   = 6
	loginCodeAttempts = 5
)

// TelegramUser is the sender of a login command as reported by the bot.
type TelegramUser struct {
	ID           int64
	Username     string
	FirstName    string
	ChatID       int64
	LanguageCode string
}

// Notifier delivers a text message to a Telegram chat.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// CodeMessageFunc renders the message that carries a login code.
type CodeMessageFunc func(user TelegramUser, code string, ttl time.Duration) string

// DefaultCodeMessage is used when no localized renderer is configured.
func DefaultCodeMessage(_ TelegramUser, code string, ttl time.Duration) string {
	return fmt.Sprintf("Your portal login code: %s\nIt expires in %d minutes.", code, int(ttl.Minutes()))
}

// LoginCodeBroker issues and verifies one-time Telegram login codes.
type LoginCodeBroker struct {
	log      *slog.Logger
	codes    repository.CodeManager
	clients  repository.ClientManager
	issuer   *AccessCodeIssuer
	notifier Notifier
	message  CodeMessageFunc
	metrics  *metrics.Metrics
	cfg      Config
	opts     options
}

// NewLoginCodeBroker creates a broker. The issuer is only used when cfg.AutoProvision is set.
func NewLoginCodeBroker(
	log *slog.Logger,
	codes repository.CodeManager,
	clients repository.ClientManager,
	issuer *AccessCodeIssuer,
	m *metrics.Metrics,
	cfg Config,
	opts ...Option,
) *LoginCodeBroker {
	if cfg.LoginCodeTTL <= 0 {
		cfg.LoginCodeTTL = DefaultConfig().LoginCodeTTL
	}

	return &LoginCodeBroker{
		log:     log.With(slog.String("component", "login_code_broker")),
		codes:   codes,
		clients: clients,
		issuer:  issuer,
		message: DefaultCodeMessage,
		metrics: m,
		cfg:     cfg,
		opts:    buildOptions(opts),
	}
}

// SetNotifier configures how codes reach the user. The bot registers itself here after
// it has been constructed.
func (b *LoginCodeBroker) SetNotifier(n Notifier, message CodeMessageFunc) {
	b.notifier = n
	if message != nil {
		b.message = message
	}
}

// Issue generates a code for the user, replaces any code the username still holds and
// sends it to the originating chat.
func (b *LoginCodeBroker) Issue(ctx context.Context, user TelegramUser) (models.LoginCode, error) {
	user.Username = strings.TrimPrefix(strings.TrimSpace(user.Username), "@")
	if user.Username == "" {
		return models.LoginCode{}, ErrNoUsername
	}

	var (
		loginCode models.LoginCode
		stored    bool
	)
	for attempt := 1; attempt <= loginCodeAttempts; attempt++ {
		n, err := randomInt(b.opts.random, 100000, 999999)
		if err != nil {
			return models.LoginCode{}, fmt.Errorf("failed to generate login code: %w", err)
		}

		now := b.opts.now().UTC()
		loginCode = models.LoginCode{
			Code:             strconv.FormatInt(n, 10),
			TelegramID:       user.ID,
			TelegramUsername: user.Username,
			FirstName:        user.FirstName,
			ChatID:           user.ChatID,
			ExpiresAt:        now.Add(b.cfg.LoginCodeTTL),
			CreatedAt:        now,
		}

		err = b.codes.ReplaceLoginCode(ctx, loginCode, now)
		if errors.Is(err, repository.ErrDuplicate) {
			b.log.DebugContext(ctx, "login code collision", "attempt", attempt)
			continue
		}
		if err != nil {
			return models.LoginCode{}, fmt.Errorf("failed to store login code: %w", err)
		}
		stored = true
		break
	}
	if !stored {
		return models.LoginCode{}, fmt.Errorf("failed to store login code after %d attempts", loginCodeAttempts)
	}

	b.metrics.CodesIssued.Inc()
	b.log.InfoContext(ctx, "login code issued", "telegram_id", user.ID, "username", user.Username)

	if b.notifier != nil {
		text := b.message(user, loginCode.Code, b.cfg.LoginCodeTTL)
		if err := b.notifier.Send(ctx, user.ChatID, text); err != nil {
			return loginCode, fmt.Errorf("failed to deliver login code: %w", err)
		}
	}

	return loginCode, nil
}

// NormalizeCode strips every non-digit character from the user input.
func NormalizeCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// Verify consumes the code and resolves the client it belongs to. Wrong, expired and
// already used codes all produce ErrInvalidOrExpired after the configured delay.
func (b *LoginCodeBroker) Verify(ctx context.Context, raw string) (models.Client, error) {
	code := NormalizeCode(raw)
	if len(code) != loginCodeLength {
		b.metrics.LoginAttempts.WithLabelValues(models.MethodTelegram, metrics.ResultMalformed).Inc()
		return models.Client{}, ErrMalformedCode
	}

	now := b.opts.now().UTC()

	start := time.Now()
	loginCode, err := b.codes.ConsumeLoginCode(ctx, code, now)
	b.metrics.DBQueryDuration.WithLabelValues("consume_login_code").Observe(time.Since(start).Seconds())
	if errors.Is(err, repository.ErrNotFound) {
		return models.Client{}, b.reject(ctx, metrics.ResultInvalid, ErrInvalidOrExpired)
	}
	if err != nil {
		b.metrics.LoginAttempts.WithLabelValues(models.MethodTelegram, metrics.ResultError).Inc()
		return models.Client{}, fmt.Errorf("failed to consume login code: %w", err)
	}

	client, err := b.resolveClient(ctx, loginCode)
	if err != nil {
		return models.Client{}, err
	}
	if !client.IsActive() {
		b.log.WarnContext(ctx, "login code for inactive client", "client_id", client.ID)
		return models.Client{}, b.reject(ctx, metrics.ResultInvalid, ErrInvalidOrExpired)
	}

	if err = b.clients.RecordLogin(ctx, client.ID, loginCode.TelegramID, now); err != nil {
		return models.Client{}, fmt.Errorf("failed to record login: %w", err)
	}
	client.TelegramID = loginCode.TelegramID
	client.LastLoginAt = &now

	b.metrics.LoginAttempts.WithLabelValues(models.MethodTelegram, metrics.ResultSuccess).Inc()
	b.log.InfoContext(ctx, "telegram login verified", "client_id", client.ID)
	return client, nil
}

func (b *LoginCodeBroker) resolveClient(ctx context.Context, loginCode models.LoginCode) (models.Client, error) {
	client, err := b.clients.GetClientByTelegramUsername(ctx, loginCode.TelegramUsername)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.Client{}, fmt.Errorf("failed to resolve client: %w", err)
	}

	if !b.cfg.AutoProvision || b.issuer == nil {
		return models.Client{}, b.reject(ctx, metrics.ResultNoAccount, ErrNoAccount)
	}

	name := loginCode.FirstName
	if strings.TrimSpace(name) == "" {
		name = loginCode.TelegramUsername
	}
	client, err = b.issuer.CreateClient(ctx, models.NewClient{Client: models.Client{
		Name:             name,
		TelegramUsername: loginCode.TelegramUsername,
		TelegramID:       loginCode.TelegramID,
		Status:           models.ClientActive,
	}})
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to provision client: %w", err)
	}
	b.log.InfoContext(ctx, "client provisioned from telegram login", "client_id", client.ID)
	return client, nil
}

func (b *LoginCodeBroker) reject(ctx context.Context, result string, err error) error {
	b.metrics.LoginAttempts.WithLabelValues(models.MethodTelegram, result).Inc()
	sleepContext(ctx, b.cfg.FailureDelay)
	return err
}
