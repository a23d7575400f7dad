// Package auth implements the credential flows of the customer portal: access codes
// issued to new clients, one-time Telegram login codes and the sessions both of them
// are exchanged for.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"time"
)

var (
	// ErrEmptyName is returned when a client is created without a display name.
	ErrEmptyName = errors.New("client name is required")
	// ErrAttemptsExhausted is returned when no free access code was found within the retry budget.
	ErrAttemptsExhausted = errors.New("unable to generate a unique access code")
	// ErrNoUsername is returned for Telegram accounts without a public username.
	ErrNoUsername = errors.New("telegram account has no username")
	// ErrMalformedCode is returned when the submitted login code does not contain exactly six digits.
	ErrMalformedCode = errors.New("login code must consist of 6 digits")
	// ErrInvalidOrExpired is the generic login failure. It never tells which check failed.
	ErrInvalidOrExpired = errors.New("invalid or expired code")
	// ErrNoAccount is returned when a verified Telegram user has no client and auto-provisioning is off.
	ErrNoAccount = errors.New("no portal account is linked to this telegram user")
	// ErrUnauthenticated is returned by session validation for every rejected token.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Access code suffix styles.
const (
	StyleNumeric = "numeric"
	StyleBase36  = "base36"
)

// Config holds the tunables shared by the auth components.
type Config struct {
	AccessCodeStyle      string        // StyleNumeric or StyleBase36
	AccessCodeAttempts   int           // Insert attempts before ErrAttemptsExhausted
	LoginCodeTTL         time.Duration // Lifetime of a Telegram login code
	FailureDelay         time.Duration // Pause before every failed login reply
	AutoProvision        bool          // Create a client for unknown Telegram users on verify
	AccessCodeSessionTTL time.Duration // Session lifetime after an access code login
	TelegramSessionTTL   time.Duration // Session lifetime after a Telegram login
	SingleSession        bool          // Evict the client's previous sessions on login
	CookieName           string        // Name of the session cookie
	SecureCookie         bool          // Set the Secure flag on the session cookie
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AccessCodeStyle:      StyleNumeric,
		AccessCodeAttempts:   10,
		LoginCodeTTL:         5 * time.Minute,
		FailureDelay:         500 * time.Millisecond,
		AccessCodeSessionTTL: 7 * 24 * time.Hour,
		TelegramSessionTTL:   30 * 24 * time.Hour,
		SingleSession:        true,
		CookieName:           "portal_session",
		SecureCookie:         true,
	}
}

// Option customises the clock and randomness source of a component.
type Option func(*options)

type options struct {
	now    func() time.Time
	random io.Reader
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRandom replaces crypto/rand.Reader.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// randomInt returns a uniform integer in [lo, hi].
func randomInt(r io.Reader, lo, hi int64) (int64, error) {
	n, err := rand.Int(r, big.NewInt(hi-lo+1))
	if err != nil {
		return 0, err
	}
	return n.Int64() + lo, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
