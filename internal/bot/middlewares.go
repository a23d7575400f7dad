package bot

import (
	"gopkg.in/telebot.v4"
)

// withMetrics counts every received command.
func (b *Bot) withMetrics(command string, next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(ctx telebot.Context) error {
		b.metrics.CommandReceived.WithLabelValues(command).Inc()
		return next(ctx)
	}
}

// PrivateOnly rejects commands sent from groups and channels.
// Login codes must never be posted where other people can read them.
func (b *Bot) PrivateOnly(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(ctx telebot.Context) error {
		chat := ctx.Chat()
		if chat == nil || chat.Type != telebot.ChatPrivate {
			b.log.Info("Command outside of private chat ignored", "chat_id", chatID(chat))
			b.metrics.SentMessages.WithLabelValues("text").Inc()
			return ctx.Send(b.t(ctx, "login.private_only"))
		}
		return next(ctx)
	}
}

func chatID(chat *telebot.Chat) int64 {
	if chat == nil {
		return 0
	}
	return chat.ID
}
