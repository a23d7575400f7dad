package bot

import (
	"context"
	"fmt"

	"github.com/UnknownOlympus/janus/internal/metrics"
	"gopkg.in/telebot.v4"
)

// MessageSender is the part of *telebot.Bot used to push messages.
type MessageSender interface {
	Send(to telebot.Recipient, what any, opts ...any) (*telebot.Message, error)
}

// Notifier delivers plain text messages to Telegram chats.
type Notifier struct {
	sender  MessageSender
	metrics *metrics.Metrics
}

func NewNotifier(sender MessageSender, metrics *metrics.Metrics) *Notifier {
	return &Notifier{sender: sender, metrics: metrics}
}

// Send sends text to chatID. The call is skipped when ctx is already done.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	if _, err := n.sender.Send(telebot.ChatID(chatID), text); err != nil {
		n.metrics.SentMessages.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	n.metrics.SentMessages.WithLabelValues("notification").Inc()
	return nil
}
