package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"quickconnect/config"
	"quickconnect/models"
	"quickconnect/services/notification"

	professionalRepo "quickconnect/database/repository/professional"
	sessionRepo "quickconnect/database/repository/session"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

// InitSessionWorker runs the async worker in background. It drains the
// session-event notification queue and the professional stats recompute
// queue.
func InitSessionWorker(pushSvc notification.Service, proRepo professionalRepo.Repository, sessRepo sessionRepo.Repository) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(notification.TypeSessionNotify, handleSessionEventTask(pushSvc, proRepo))
	mux.HandleFunc(notification.TypeRecomputeStats, handleRecomputeTask(proRepo, sessRepo))

	// Start Redis health monitor
	go monitorRedisConnection()

	// Start async worker with retry logic
	go func() {
		log.Println("[SessionWorker] 🚀 Starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[SessionWorker] ❌ Attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[SessionWorker] ❗ Max retry attempts reached. Exiting.")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second) // Exponential backoff
			} else {
				break
			}
		}
	}()
}

func handleSessionEventTask(pushSvc notification.Service, proRepo professionalRepo.Repository) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var ev models.SessionEvent
		if err := json.Unmarshal(task.Payload(), &ev); err != nil {
			log.Printf("[SessionEventHandler] 🔴 Invalid payload: %v", err)
			return err
		}

		pro, err := proRepo.GetByID(ev.ProfessionalID)
		if err != nil {
			log.Printf("[SessionEventHandler] ❌ Unknown professional %s: %v", ev.ProfessionalID, err)
			return err
		}

		title, body := sessionEventText(ev)
		data := map[string]string{
			"sessionId": ev.SessionID,
			"event":     ev.Event,
			"channel":   ev.Channel,
		}

		if err := pushSvc.SendSessionPush(ctx, pro.FCMToken, title, body, data); err != nil {
			// Delivery is best effort; a dead token is not worth retrying.
			log.Printf("[SessionEventHandler] ⚠️ Push to %s failed: %v", ev.ProfessionalID, err)
		}
		return nil
	}
}

func sessionEventText(ev models.SessionEvent) (string, string) {
	switch ev.Event {
	case models.EventSessionAccepted:
		return "Session started", fmt.Sprintf("Your %s session is now active.", ev.Channel)
	case models.EventSessionCompleted:
		return "Session completed", fmt.Sprintf("Session finished. Total: %.2f", ev.Cost)
	case models.EventSessionDeclined:
		return "Session declined", "The session request was declined."
	default:
		return "Session update", fmt.Sprintf("Session %s: %s", ev.SessionID, ev.Event)
	}
}

func handleRecomputeTask(proRepo professionalRepo.Repository, sessRepo sessionRepo.Repository) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p models.RecomputePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Printf("[RecomputeHandler] 🔴 Invalid payload: %v", err)
			return err
		}

		agg, err := sessRepo.CompletionStatsFor(p.ProfessionalID)
		if err != nil {
			log.Printf("[RecomputeHandler] ❌ Failed to aggregate sessions for %s: %v", p.ProfessionalID, err)
			return err
		}

		pro, err := proRepo.GetByID(p.ProfessionalID)
		if err != nil {
			log.Printf("[RecomputeHandler] ❌ Unknown professional %s: %v", p.ProfessionalID, err)
			return err
		}

		stats := pro.Stats
		stats.TotalSessions = agg.Total
		stats.TotalReviews = agg.Rated
		if agg.Rated > 0 {
			stats.AverageRating = round2(float64(agg.RatingSum) / float64(agg.Rated))
		}
		// Completion rate is completed over all terminal sessions; success
		// rate is clean completions over completed ones. Distinct metrics.
		if agg.Total > 0 {
			stats.CompletionRate = round2(float64(agg.Completed) / float64(agg.Total) * 100)
		}
		if agg.Completed > 0 {
			stats.SuccessRate = round2(float64(agg.CompletedClean) / float64(agg.Completed) * 100)
		}

		if err := proRepo.SaveStats(p.ProfessionalID, stats); err != nil {
			log.Printf("[RecomputeHandler] ❌ Failed to save stats for %s: %v", p.ProfessionalID, err)
			return err
		}

		log.Printf("[RecomputeHandler] ✅ Stats refreshed for %s (rating %.2f over %d reviews)",
			p.ProfessionalID, stats.AverageRating, stats.TotalReviews)
		return nil
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// monitorRedisConnection pings Redis periodically to detect failures at runtime.
func monitorRedisConnection() {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})

	ctx := context.Background()

	for {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[SessionWorker] ⚠️ Redis connection lost: %v", err)
		}
		time.Sleep(10 * time.Second)
	}
}
