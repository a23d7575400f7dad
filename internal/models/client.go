package models

import "time"

// Client statuses.
const (
	ClientActive   = "active"
	ClientInactive = "inactive"
)

// Client represents a customer account of the portal.
// The access code is assigned once at creation and never changes afterwards.
type Client struct {
	ID               string     `json:"id"`                          // Unique identifier (UUID) of the client
	Name             string     `json:"name"`                        // Display name of the client
	Email            string     `json:"email,omitempty"`             // Optional contact email
	Company          string     `json:"company,omitempty"`           // Optional company name
	Phone            string     `json:"phone,omitempty"`             // Optional phone number
	TelegramUsername string     `json:"telegram_username,omitempty"` // Telegram username without the leading @
	TelegramID       int64      `json:"telegram_id,omitempty"`       // Numeric Telegram user ID, 0 when unknown
	AccessCode       string     `json:"access_code"`                 // Human-shareable login code, globally unique
	Status           string     `json:"status"`                      // Account status: active or inactive
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`     // Timestamp of the last successful login
	CreatedAt        time.Time  `json:"created_at"`                  // Timestamp of when the client was created
}

// IsActive reports whether the client may log in.
func (c Client) IsActive() bool {
	return c.Status == ClientActive
}

// NewClient carries everything that is persisted together when a client is created.
// Onboarding is nil for clients that are provisioned implicitly (first Telegram login).
type NewClient struct {
	Client     Client      // Client row to insert; AccessCode is filled in by the issuer
	Onboarding *Onboarding // Default project, welcome message and milestones for the admin flow
}

// Onboarding describes the rows created alongside a client by the admin flow.
type Onboarding struct {
	Project        Project  // Default project of the new client
	WelcomeMessage string   // Body of the first agency message
	Milestones     []string // Ordered milestone titles of the default project
}
