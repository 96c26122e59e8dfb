package sessionRepo

import (
	"quickconnect/models"
)

// CompletionStats summarizes a professional's terminal sessions, used by the
// background worker to refresh derived metrics.
type CompletionStats struct {
	Total          int
	Completed      int
	CompletedClean int // completed without recorded call issues
	Rated          int
	RatingSum      int
}

// Repository defines persistence for consultation sessions and their chat
// messages.
type Repository interface {
	Insert(sess *models.Session) error
	Update(sess *models.Session) error
	GetByID(id string) (*models.Session, error)
	GetActiveByPair(professionalID, clientID string) (*models.Session, error)
	CompletionStatsFor(professionalID string) (CompletionStats, error)
	SaveMessage(msg *models.ChatMessage) error
}
