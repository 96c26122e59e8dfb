package models

import (
	"time"
)

// Session status values. Terminal statuses are immutable except for late
// rating attachment on a completed session.
const (
	SessionPending      = "pending"
	SessionActive       = "active"
	SessionInProgress   = "in_progress"
	SessionCompleted    = "completed"
	SessionCancelled    = "cancelled"
	SessionDisconnected = "disconnected"
	SessionDeclined     = "declined"
	SessionExpired      = "expired"
)

// Call quality values reported from the client when a call ends.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
	QualityFailed    = "failed"
)

// ValidCallQuality reports whether q is a recognized quality value.
func ValidCallQuality(q string) bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor, QualityFailed:
		return true
	}
	return false
}

// Session is a single consultation between a client and a professional,
// billed by duration against the rate snapshotted at creation.
type Session struct {
	ID             string     `bson:"id" json:"id"`
	ProfessionalID string     `bson:"professionalId" json:"professionalId"`
	ClientID       string     `bson:"clientId" json:"clientId"`
	Channel        string     `bson:"channel" json:"channel"`
	Status         string     `bson:"status" json:"status"`
	Category       string     `bson:"category,omitempty" json:"category,omitempty"`
	RoomID         string     `bson:"roomId,omitempty" json:"roomId,omitempty"`
	ScheduledStart *time.Time `bson:"scheduledStart,omitempty" json:"scheduledStart,omitempty"`
	ActualStart    *time.Time `bson:"actualStart,omitempty" json:"actualStart,omitempty"`
	EndedAt        *time.Time `bson:"endedAt,omitempty" json:"endedAt,omitempty"`

	// RateUsed is snapshotted from the professional's rate card when the
	// session is created and never changes afterwards, even if the
	// professional's rates do.
	RateUsed float64 `bson:"rateUsed" json:"rateUsed"`

	// CallSeconds accumulates call-window time across reconnect segments.
	CallSeconds     int     `bson:"callSeconds" json:"callSeconds"`
	DurationMinutes int     `bson:"durationMinutes" json:"durationMinutes"`
	Cost            float64 `bson:"cost" json:"cost"`
	TransactionRef  string  `bson:"transactionRef,omitempty" json:"transactionRef,omitempty"`

	CallQuality string   `bson:"callQuality,omitempty" json:"callQuality,omitempty"`
	CallIssues  []string `bson:"callIssues,omitempty" json:"callIssues,omitempty"`

	Rating *int   `bson:"rating,omitempty" json:"rating,omitempty"`
	Review string `bson:"review,omitempty" json:"review,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsTerminal reports whether the session has reached a final status.
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case SessionCompleted, SessionCancelled, SessionDisconnected, SessionDeclined, SessionExpired:
		return true
	}
	return false
}

// IsActive reports whether the session currently occupies a workload slot.
func (s *Session) IsActive() bool {
	return s.Status == SessionActive || s.Status == SessionInProgress
}

// ChatMessage is a persisted message exchanged within a session.
type ChatMessage struct {
	ID         string    `bson:"id" json:"id"`
	SessionID  string    `bson:"sessionId" json:"sessionId"`
	Sender     string    `bson:"sender" json:"sender"`
	Text       string    `bson:"text" json:"text"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	Read       bool      `bson:"read" json:"read"`
}
