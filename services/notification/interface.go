package notification

import (
	"context"

	"quickconnect/models"
)

// Enqueuer hands work to the background queue. Callers never wait for
// delivery: session transitions are fire-and-forget toward notifications.
type Enqueuer interface {
	SessionEvent(ctx context.Context, event models.SessionEvent) error
	RecomputeStats(ctx context.Context, professionalID string) error
}

// Service delivers push notifications. The production implementation sends
// FCM messages from the background worker.
type Service interface {
	SendSessionPush(ctx context.Context, token, title, body string, data map[string]string) error
}
