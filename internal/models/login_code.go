package models

import "time"

// LoginCode is a short-lived, single-use credential issued through the Telegram bot.
type LoginCode struct {
	Code             string    `json:"code"`              // Six digit numeric code
	TelegramID       int64     `json:"telegram_id"`       // Numeric Telegram ID of the requester
	TelegramUsername string    `json:"telegram_username"` // Telegram username, matched case-insensitively
	FirstName        string    `json:"first_name"`        // Optional first name from the Telegram profile
	ChatID           int64     `json:"chat_id"`           // Chat the code was requested from
	ExpiresAt        time.Time `json:"expires_at"`        // Moment after which the code is no longer accepted
	Consumed         bool      `json:"consumed"`          // Consumed is set exactly once on successful verification
	CreatedAt        time.Time `json:"created_at"`        // Issuance timestamp
}

// IsValid reports whether the code can still be redeemed at the given moment.
func (c LoginCode) IsValid(now time.Time) bool {
	return !c.Consumed && now.Before(c.ExpiresAt)
}
