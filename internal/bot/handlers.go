package bot

import (
	"context"
	"errors"

	"github.com/UnknownOlympus/janus/internal/auth"
	"gopkg.in/telebot.v4"
)

// startHandler greets the user and issues a login code right away.
func (b *Bot) startHandler(ctx telebot.Context) error {
	sender := ctx.Sender()
	b.log.Info("User started the bot", "id", sender.ID, "username", sender.Username)

	name := sender.FirstName
	if name == "" {
		name = sender.Username
	}
	b.metrics.SentMessages.WithLabelValues("text").Inc()
	if err := ctx.Send(b.tWithData(ctx, "welcome", map[string]any{"name": name})); err != nil {
		return err
	}

	return b.PrivateOnly(b.loginHandler)(ctx)
}

// loginHandler issues a new login code. The broker delivers it to the chat through the
// notifier, so on success nothing is sent from here.
func (b *Bot) loginHandler(ctx telebot.Context) error {
	timeoutCtx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	sender := ctx.Sender()
	user := auth.TelegramUser{
		ID:           sender.ID,
		Username:     sender.Username,
		FirstName:    sender.FirstName,
		ChatID:       ctx.Chat().ID,
		LanguageCode: sender.LanguageCode,
	}

	_, err := b.codes.Issue(timeoutCtx, user)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrNoUsername):
		b.log.InfoContext(timeoutCtx, "Login code refused, user has no username", "id", sender.ID)
		b.metrics.SentMessages.WithLabelValues("text").Inc()
		return ctx.Send(b.t(ctx, "login.no_username"))
	default:
		b.log.ErrorContext(timeoutCtx, "Failed to issue login code", "id", sender.ID, "error", err)
		b.metrics.SentMessages.WithLabelValues("error").Inc()
		return ctx.Send(b.t(ctx, "error.internal"))
	}
}

func (b *Bot) helpHandler(ctx telebot.Context) error {
	b.metrics.SentMessages.WithLabelValues("text").Inc()
	return ctx.Send(b.t(ctx, "help"))
}

// textHandler answers anything that is not a command.
func (b *Bot) textHandler(ctx telebot.Context) error {
	b.metrics.SentMessages.WithLabelValues("text").Inc()
	return ctx.Send(b.t(ctx, "unknown.command"))
}
