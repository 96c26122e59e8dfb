package models

// SessionEvent is the payload enqueued for fire-and-forget notification
// delivery when a session changes state.
type SessionEvent struct {
	SessionID      string  `json:"sessionId"`
	ProfessionalID string  `json:"professionalId"`
	ClientID       string  `json:"clientId"`
	Event          string  `json:"event"`
	Channel        string  `json:"channel,omitempty"`
	Cost           float64 `json:"cost,omitempty"`
}

// Session event kinds.
const (
	EventSessionAccepted  = "session_accepted"
	EventSessionDeclined  = "session_declined"
	EventSessionCompleted = "session_completed"
)

// RecomputePayload asks the background worker to refresh a professional's
// derived rating and completion metrics.
type RecomputePayload struct {
	ProfessionalID string `json:"professionalId"`
}
