package models

import (
	"time"
)

// Professional status values, set by the external admin approval workflow.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusSuspended = "suspended"
)

// Consultation channels.
const (
	ChannelChat  = "chat"
	ChannelAudio = "audio"
	ChannelVideo = "video"
)

// LockInfo is an exclusive, time-bounded claim on a professional held by a
// client during session negotiation. At most one per professional.
type LockInfo struct {
	Holder     string    `bson:"holder" json:"holder"`
	Token      string    `bson:"token" json:"-"`
	AcquiredAt time.Time `bson:"acquiredAt" json:"acquiredAt"`
	ExpiresAt  time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Expired reports whether the lock has passed its expiry. An expired lock is
// treated as absent by every acquire path.
func (l *LockInfo) Expired(now time.Time) bool {
	return l != nil && !l.ExpiresAt.After(now)
}

// RateCard holds per-channel per-minute rates. A zero channel rate falls back
// to the base rate.
type RateCard struct {
	Base  float64 `bson:"base" json:"base"`
	Chat  float64 `bson:"chat,omitempty" json:"chat,omitempty"`
	Voice float64 `bson:"voice,omitempty" json:"voice,omitempty"`
	Video float64 `bson:"video,omitempty" json:"video,omitempty"`
}

// RateFor returns the per-minute rate for a channel, falling back to the base
// rate when no channel-specific rate is configured.
func (r RateCard) RateFor(channel string) float64 {
	switch channel {
	case ChannelChat:
		if r.Chat > 0 {
			return r.Chat
		}
	case ChannelAudio:
		if r.Voice > 0 {
			return r.Voice
		}
	case ChannelVideo:
		if r.Video > 0 {
			return r.Video
		}
	}
	return r.Base
}

// LiveState is the continuously mutating presence state of a professional.
// All mutations go through the availability registry, never direct writes.
// Invariant: Lock != nil implies Available == false.
type LiveState struct {
	Online      bool      `bson:"online" json:"online"`
	Available   bool      `bson:"available" json:"available"`
	Lock        *LockInfo `bson:"lock,omitempty" json:"lock,omitempty"`
	Workload    int       `bson:"workload" json:"workload"`
	MaxWorkload int       `bson:"maxWorkload" json:"maxWorkload"`
	LastActive  time.Time `bson:"lastActive" json:"lastActive"`
}

// Stats are aggregate figures derived from completed sessions.
type Stats struct {
	AverageRating   float64 `bson:"averageRating" json:"averageRating"`
	TotalSessions   int     `bson:"totalSessions" json:"totalSessions"`
	TotalReviews    int     `bson:"totalReviews" json:"totalReviews"`
	ExperienceYears int     `bson:"experienceYears" json:"experienceYears"`
	AvgResponseTime string  `bson:"avgResponseTime" json:"avgResponseTime"`
	SuccessRate     float64 `bson:"successRate" json:"successRate"`
	CompletionRate  float64 `bson:"completionRate" json:"completionRate"`
}

type Professional struct {
	ID              string    `bson:"id" json:"id"`
	Name            string    `bson:"name" json:"name"`
	Specialization  string    `bson:"specialization" json:"specialization"`
	PrimaryCategory string    `bson:"primaryCategory" json:"primaryCategory"`
	Categories      []string  `bson:"categories" json:"categories"`
	Status          string    `bson:"status" json:"status"`
	Rates           RateCard  `bson:"rates" json:"rates"`
	Live            LiveState `bson:"live" json:"live"`
	Stats           Stats     `bson:"stats" json:"stats"`
	Email           string    `bson:"email,omitempty" json:"email,omitempty"`
	Phone           string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Bio             string    `bson:"bio,omitempty" json:"bio,omitempty"`
	FCMToken        string    `bson:"fcmToken,omitempty" json:"-"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsApproved reports whether the external admin workflow has approved this
// professional for matching.
func (p *Professional) IsApproved() bool {
	return p.Status == StatusApproved
}

// InCategory reports membership in a category, including the primary one.
func (p *Professional) InCategory(category string) bool {
	if p.PrimaryCategory == category {
		return true
	}
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}
