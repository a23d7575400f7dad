package models

import "time"

// Login methods that can open a portal session.
const (
	MethodAccessCode = "access_code"
	MethodTelegram   = "telegram"
)

// Session is the server-side record behind the portal cookie.
// Only the SHA-256 hash of the token is stored.
type Session struct {
	TokenHash string    `json:"-"`          // Hex encoded SHA-256 of the cookie token
	ClientID  string    `json:"client_id"`  // Owner of the session
	Method    string    `json:"method"`     // Login method that created the session
	ExpiresAt time.Time `json:"expires_at"` // Session is rejected at or after this moment
	CreatedAt time.Time `json:"created_at"` // Creation timestamp
}

// Expired reports whether the session is no longer usable at the given moment.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
