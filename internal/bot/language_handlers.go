package bot

import (
	"gopkg.in/telebot.v4"
)

// languageHandler presents the user with a menu to choose their preferred language.
func (b *Bot) languageHandler(ctx telebot.Context) error {
	menu := &telebot.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data(b.t(ctx, "language.button.english"), btnLanguageEN.Unique)),
		menu.Row(menu.Data(b.t(ctx, "language.button.german"), btnLanguageDE.Unique)),
	)

	b.metrics.SentMessages.WithLabelValues("text").Inc()
	return ctx.Send(b.t(ctx, "language.select"), menu)
}

// languageChangeHandler stores the chosen language and confirms it in that language.
func (b *Bot) languageChangeHandler(ctx telebot.Context) error {
	userID := ctx.Sender().ID
	callbackData := ctx.Callback().Unique
	b.log.Debug("User selected language", "callbackData", callbackData, "userID", userID)

	var langCode string
	switch callbackData {
	case btnLanguageEN.Unique:
		langCode = "en"
	case btnLanguageDE.Unique:
		langCode = "de"
	default:
		b.log.Error("Unknown language callback", "data", callbackData)
		return ctx.Respond(&telebot.CallbackResponse{Text: "Unknown language"})
	}

	b.languages.Set(userID, langCode)
	b.log.Info("User changed language", "userID", userID, "language", langCode)

	_ = ctx.Respond()
	b.metrics.SentMessages.WithLabelValues("text").Inc()
	return ctx.Send(b.t(ctx, "language.changed"))
}
