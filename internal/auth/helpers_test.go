package auth_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/UnknownOlympus/janus/internal/metrics"
	"github.com/UnknownOlympus/janus/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) Sent() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

// fixedCodes yields the random bytes that make rand.Int produce the given
// six digit codes, followed by real randomness.
func fixedCodes(codes ...int64) io.Reader {
	var buf bytes.Buffer
	for _, code := range codes {
		n := code - 100000
		buf.Write([]byte{byte(n >> 16), byte(n >> 8), byte(n)})
	}
	return io.MultiReader(&buf, rand.Reader)
}

type env struct {
	store    *memory.Store
	clock    *fakeClock
	notifier *fakeNotifier
	metrics  *metrics.Metrics
	cfg      auth.Config
	log      *slog.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()

	cfg := auth.DefaultConfig()
	cfg.FailureDelay = 0
	cfg.SecureCookie = false

	return &env{
		store:    memory.New(),
		clock:    newClock(),
		notifier: &fakeNotifier{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		cfg:      cfg,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *env) issuer(opts ...auth.Option) *auth.AccessCodeIssuer {
	opts = append([]auth.Option{auth.WithClock(e.clock.Now)}, opts...)
	return auth.NewAccessCodeIssuer(e.log, e.store, e.metrics, e.cfg, opts...)
}

func (e *env) broker(opts ...auth.Option) *auth.LoginCodeBroker {
	opts = append([]auth.Option{auth.WithClock(e.clock.Now)}, opts...)
	broker := auth.NewLoginCodeBroker(e.log, e.store, e.store, e.issuer(), e.metrics, e.cfg, opts...)
	broker.SetNotifier(e.notifier, nil)
	return broker
}

func (e *env) sessions() *auth.SessionManager {
	return auth.NewSessionManager(e.log, e.store, e.store, e.metrics, e.cfg, auth.WithClock(e.clock.Now))
}
