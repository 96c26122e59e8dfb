// gateway/protocol.go
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quickconnect/models"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// browse connection, client -> server
	TypeLock                 MessageType = "lock"
	TypeRelease              MessageType = "release"
	TypeListProfessionals    MessageType = "get_available_professionals"
	TypeClientIdentification MessageType = "client_identification"

	// session connection, client -> server
	TypeConfirmSession MessageType = "confirm_session"
	TypeChatMessage    MessageType = "chat_message"
	TypeCallInitiate   MessageType = "call_initiate"
	TypeCallAccept     MessageType = "call_accept"
	TypeCallReject     MessageType = "call_reject"
	TypeCallEnd        MessageType = "call_end"
	TypeEndSession     MessageType = "end_session"
	TypeClientPaused   MessageType = "client_paused"

	// server -> client
	TypeLocked              MessageType = "locked"
	TypeReleased            MessageType = "released"
	TypeProfessionals       MessageType = "professionals"
	TypeSessionConnected    MessageType = "session_connected"
	TypeSessionConfirmed    MessageType = "session_confirmed"
	TypeMessageSent         MessageType = "message_sent"
	TypeIncomingCall        MessageType = "incoming_call"
	TypeCallAccepted        MessageType = "call_accepted"
	TypeCallRejected        MessageType = "call_rejected"
	TypeCallEndedConfirm    MessageType = "call_ended_confirm"
	TypeSessionEndedConfirm MessageType = "session_ended_confirm"
	TypePeerPaused          MessageType = "peer_paused"
	TypeAvailabilityUpdate  MessageType = "availability_update"
	TypeErrorEvent          MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type LockRequest struct {
	Type           MessageType `json:"type"`
	ProfessionalID string      `json:"professional_id"`
}

type ReleaseRequest struct {
	Type           MessageType `json:"type"`
	ProfessionalID string      `json:"professional_id"`
}

type ListProfessionals struct {
	Type     MessageType `json:"type"`
	Category string      `json:"category"`
}

type ClientIdentification struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"client_id"`
}

type ConfirmSession struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ChatMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Content   string      `json:"content"`
}

type CallInitiate struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	CallType  string      `json:"call_type"`
}

type CallAccept struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type CallReject struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason,omitempty"`
}

type CallEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Quality   string      `json:"quality,omitempty"`
	Issues    []string    `json:"issues,omitempty"`
}

type EndSession struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	DurationMinutes *int        `json:"duration_minutes,omitempty"`
	Cost            *float64    `json:"cost,omitempty"`
	Quality         string      `json:"quality,omitempty"`
	Issues          []string    `json:"issues,omitempty"`
}

type ClientPaused struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type LockResult struct {
	Type           MessageType `json:"type"`
	ProfessionalID string      `json:"professional_id"`
	Success        bool        `json:"success"`
	LockedBy       string      `json:"locked_by,omitempty"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
}

type ReleaseResult struct {
	Type           MessageType `json:"type"`
	ProfessionalID string      `json:"professional_id"`
}

// ProfessionalSummary is the browse-snapshot projection of a candidate.
type ProfessionalSummary struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Category  string                `json:"category"`
	Rate      float64               `json:"rate"`
	Online    bool                  `json:"online"`
	Available bool                  `json:"available"`
	Score     models.ScoreBreakdown `json:"ai_score"`
}

type ProfessionalList struct {
	Type          MessageType           `json:"type"`
	Category      string                `json:"category"`
	Professionals []ProfessionalSummary `json:"professionals"`
}

type SessionConnected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
	RoomID    string      `json:"room_id,omitempty"`
}

type SessionConfirmed struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
}

type MessageSent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	SentAt    time.Time   `json:"sent_at"`
}

type IncomingCall struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	CallType  string      `json:"call_type"`
	RoomID    string      `json:"room_id,omitempty"`
}

type CallAccepted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type CallRejected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason,omitempty"`
}

type CallEndedConfirm struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	DurationSeconds int         `json:"duration_seconds"`
}

type SessionEndedConfirm struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	Status          string      `json:"status"`
	DurationMinutes int         `json:"duration_minutes"`
	Cost            float64     `json:"cost"`
}

// AvailabilityUpdate is pushed to browse connections whenever a
// professional's lock state changes.
type AvailabilityUpdate struct {
	Type           MessageType `json:"type"`
	ProfessionalID string      `json:"professional_id"`
	Available      bool        `json:"available"`
}

type PeerPaused struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ParseClientMessage decodes a raw inbound frame into its typed variant.
// Unknown types and structurally invalid payloads are rejected so handlers
// only ever see well-formed messages.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeLock:
		var msg LockRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ProfessionalID == "" {
			return nil, errors.New("invalid lock: missing professional_id")
		}
		return msg, nil
	case TypeRelease:
		var msg ReleaseRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ProfessionalID == "" {
			return nil, errors.New("invalid release: missing professional_id")
		}
		return msg, nil
	case TypeListProfessionals:
		var msg ListProfessionals
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientIdentification:
		var msg ClientIdentification
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ClientID == "" {
			return nil, errors.New("invalid client_identification: missing client_id")
		}
		return msg, nil
	case TypeConfirmSession:
		var msg ConfirmSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Content == "" {
			return nil, errors.New("invalid chat_message: empty content")
		}
		return msg, nil
	case TypeCallInitiate:
		var msg CallInitiate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallType != models.ChannelAudio && msg.CallType != models.ChannelVideo {
			return nil, fmt.Errorf("invalid call_initiate: unsupported call_type %q", msg.CallType)
		}
		return msg, nil
	case TypeCallAccept:
		var msg CallAccept
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeCallReject:
		var msg CallReject
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeCallEnd:
		var msg CallEnd
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Quality != "" && !models.ValidCallQuality(msg.Quality) {
			return nil, fmt.Errorf("invalid call_end: unknown quality %q", msg.Quality)
		}
		return msg, nil
	case TypeEndSession:
		var msg EndSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Quality != "" && !models.ValidCallQuality(msg.Quality) {
			return nil, fmt.Errorf("invalid end_session: unknown quality %q", msg.Quality)
		}
		return msg, nil
	case TypeClientPaused:
		var msg ClientPaused
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
