package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/i18n"
	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/models"
	"gopkg.in/telebot.v4"
)

const handlerTimeout = 5 * time.Second

// CodeIssuer issues Telegram login codes. It is implemented by auth.LoginCodeBroker.
type CodeIssuer interface {
	Issue(ctx context.Context, user auth.TelegramUser) (models.LoginCode, error)
}

// Bot contains the bot API instance and other information.
type Bot struct {
	bot       *telebot.Bot
	log       *slog.Logger
	codes     CodeIssuer
	metrics   *metrics.Metrics
	languages *LanguageStore
	localizer *i18n.Localizer
}

var (
	btnLanguageEN = telebot.InlineButton{Unique: "language_en"}
	btnLanguageDE = telebot.InlineButton{Unique: "language_de"}
)

// NewBot creates a new bot with the given token.
func NewBot(
	log *slog.Logger,
	codes CodeIssuer,
	metrics *metrics.Metrics,
	token string,
	poller time.Duration,
) (*Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: poller},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Authorized on account", "account", bot.Me.Username)

	botInstance, err := newBot(log, codes, metrics)
	if err != nil {
		return nil, err
	}
	botInstance.bot = bot
	botInstance.registerRoutes()

	return botInstance, nil
}

func newBot(log *slog.Logger, codes CodeIssuer, metrics *metrics.Metrics) (*Bot, error) {
	localizer, err := i18n.NewLocalizer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize localizer: %w", err)
	}

	return &Bot{
		log:       log.With(slog.String("component", "bot")),
		codes:     codes,
		metrics:   metrics,
		languages: NewLanguageStore(),
		localizer: localizer,
	}, nil
}

// Notifier returns an auth.Notifier that delivers messages through this bot.
func (b *Bot) Notifier() *Notifier {
	return NewNotifier(b.bot, b.metrics)
}

// Start launches the bot to listen for updates.
func (b *Bot) Start() {
	b.log.Info("Telegram bot is starting...")
	b.bot.Start()
}

// Stop gracefully stops the Telegram bot and logs the action.
func (b *Bot) Stop() {
	b.log.Info("Telegram bot is stopped...")
	b.bot.Stop()
}

// registerRoutes configures all routes (commands).
func (b *Bot) registerRoutes() {
	b.bot.Handle("/start", b.withMetrics("start", b.startHandler))
	b.bot.Handle("/login", b.withMetrics("login", b.PrivateOnly(b.loginHandler)))
	b.bot.Handle("/help", b.withMetrics("help", b.helpHandler))
	b.bot.Handle("/language", b.withMetrics("language", b.languageHandler))
	b.bot.Handle(telebot.OnText, b.withMetrics("text", b.textHandler))

	b.bot.Handle(&btnLanguageEN, b.languageChangeHandler)
	b.bot.Handle(&btnLanguageDE, b.languageChangeHandler)
}

// language returns the chosen language of the sender, falling back to the Telegram client language.
func (b *Bot) language(tCtx telebot.Context) string {
	sender := tCtx.Sender()
	if sender == nil {
		return i18n.DefaultLanguage
	}
	if lang, ok := b.languages.Get(sender.ID); ok {
		return lang
	}
	return i18n.NormalizeLanguageCode(sender.LanguageCode)
}

// t is a shorthand method for getting translations.
func (b *Bot) t(tCtx telebot.Context, key string) string {
	return b.localizer.Get(b.language(tCtx), key)
}

// tWithData is a shorthand method for getting translations with placeholder data.
func (b *Bot) tWithData(tCtx telebot.Context, key string, data map[string]any) string {
	return b.localizer.GetWithData(b.language(tCtx), key, data)
}

// CodeMessage renders the login code message in the user's language.
// It satisfies auth.CodeMessageFunc.
func (b *Bot) CodeMessage(user auth.TelegramUser, code string, ttl time.Duration) string {
	lang, ok := b.languages.Get(user.ID)
	if !ok {
		lang = i18n.NormalizeLanguageCode(user.LanguageCode)
	}
	return b.localizer.GetWithData(lang, "login.code", map[string]any{
		"code":    code,
		"minutes": int(ttl.Minutes()),
	})
}
