package portal

import (
	"context"

	"github.com/UnknownOlympus/janus/internal/models"
)

type ctxKey string

const clientContextKey ctxKey = "janus.portal.client"

// WithClient stores the authenticated client in the context.
func WithClient(ctx context.Context, client models.Client) context.Context {
	return context.WithValue(ctx, clientContextKey, client)
}

// ClientFromContext returns the client put there by the auth gate.
func ClientFromContext(ctx context.Context) (models.Client, bool) {
	client, ok := ctx.Value(clientContextKey).(models.Client)
	return client, ok
}
