package sessionRepo

import (
	"fmt"
	"time"

	"quickconnect/models"

	"go.mongodb.org/mongo-driver/bson"
)

// CompletionStatsFor aggregates a professional's terminal sessions into the
// counters the rating recompute task needs.
func (r *MongoSessionRepo) CompletionStatsFor(professionalID string) (CompletionStats, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	terminal := []string{
		models.SessionCompleted, models.SessionCancelled, models.SessionDisconnected,
		models.SessionDeclined, models.SessionExpired,
	}
	cursor, err := r.coll.Find(ctx, bson.M{
		"professionalId": professionalID,
		"status":         bson.M{"$in": terminal},
	})
	if err != nil {
		return CompletionStats{}, fmt.Errorf("failed to fetch sessions for professional %s: %w", professionalID, err)
	}
	defer cursor.Close(ctx)

	var stats CompletionStats
	for cursor.Next(ctx) {
		var sess models.Session
		if err := cursor.Decode(&sess); err != nil {
			return CompletionStats{}, fmt.Errorf("failed to decode session: %w", err)
		}
		stats.Total++
		if sess.Status == models.SessionCompleted {
			stats.Completed++
			if len(sess.CallIssues) == 0 {
				stats.CompletedClean++
			}
		}
		if sess.Rating != nil {
			stats.Rated++
			stats.RatingSum += *sess.Rating
		}
	}
	if err := cursor.Err(); err != nil {
		return CompletionStats{}, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return stats, nil
}
