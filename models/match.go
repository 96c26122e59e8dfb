package models

import "time"

// MatchPreferences narrow the candidate pool for a match request. Zero values
// mean "no preference".
type MatchPreferences struct {
	MaxRate   float64 `json:"maxRate,omitempty"`
	MinRating float64 `json:"minRating,omitempty"`
	Channel   string  `json:"channel,omitempty"`
}

// MatchRequest is a transient value describing what a client is looking for.
// It lives only for the duration of a coordinator call and is never persisted.
type MatchRequest struct {
	ClientID    string           `json:"clientId"`
	Category    string           `json:"category"`
	Preferences MatchPreferences `json:"preferences"`
}

// ScoreBreakdown is the weighted component vector produced by the scoring
// engine. Component weights sum to 1, so Total is always in [0,1].
type ScoreBreakdown struct {
	Availability float64 `json:"availability"`
	Rating       float64 `json:"rating"`
	Experience   float64 `json:"experience"`
	ResponseTime float64 `json:"responseTime"`
	PriceFit     float64 `json:"priceFit"`
	Total        float64 `json:"total"`
	Reason       string  `json:"reason"`
}

// Candidate pairs a professional with its score for a given request.
type Candidate struct {
	Professional Professional   `json:"professional"`
	Score        ScoreBreakdown `json:"score"`
}

// Reservation is the handle returned by a successful reserve. The token must
// be presented to confirm, extend, or abandon the underlying lock.
type Reservation struct {
	ProfessionalID string    `json:"professionalId"`
	ClientID       string    `json:"clientId"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expiresAt"`
}
