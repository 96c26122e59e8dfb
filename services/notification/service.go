package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"quickconnect/models"
	"quickconnect/utils"

	"firebase.google.com/go/v4/messaging"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task type names shared between the enqueuer and the background worker.
const (
	TypeSessionNotify  = "notify:session_event"
	TypeRecomputeStats = "professional:recompute_stats"
)

// AsynqEnqueuer queues notification and recompute tasks on Redis.
type AsynqEnqueuer struct {
	Client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{Client: client}
}

func (e *AsynqEnqueuer) SessionEvent(ctx context.Context, event models.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if _, err := e.Client.EnqueueContext(ctx, asynq.NewTask(TypeSessionNotify, payload)); err != nil {
		return fmt.Errorf("failed to enqueue session event: %w", err)
	}
	return nil
}

func (e *AsynqEnqueuer) RecomputeStats(ctx context.Context, professionalID string) error {
	payload, err := json.Marshal(models.RecomputePayload{ProfessionalID: professionalID})
	if err != nil {
		return fmt.Errorf("failed to marshal recompute payload: %w", err)
	}
	if _, err := e.Client.EnqueueContext(ctx, asynq.NewTask(TypeRecomputeStats, payload)); err != nil {
		return fmt.Errorf("failed to enqueue stats recompute: %w", err)
	}
	return nil
}

// FCMService sends pushes through Firebase Cloud Messaging.
type FCMService struct {
	Logger *zap.Logger
}

func NewFCMService(logger *zap.Logger) *FCMService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCMService{Logger: logger}
}

func (s *FCMService) SendSessionPush(ctx context.Context, token, title, body string, data map[string]string) error {
	if token == "" {
		return fmt.Errorf("no FCM token registered")
	}
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}
	response, err := utils.FCMClient.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	s.Logger.Debug("push delivered", zap.String("response", response))
	return nil
}
