// services/scoring/scoring.go
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"quickconnect/models"
)

// Component weights. They sum to 1 so the total score stays in [0,1].
const (
	AvailabilityWeight = 0.30
	RatingWeight       = 0.25
	ExperienceWeight   = 0.20
	ResponseWeight     = 0.15
	PriceWeight        = 0.10

	// Bayesian shrinkage pulls small-sample averages toward the prior so a
	// professional with two five-star reviews does not outrank one with two
	// hundred solid ones.
	RatingPrior       = 4.0
	ShrinkageReviews  = 10.0
	ExperienceCapYrs  = 10.0
	NeutralPriceScore = 0.5
)

// responseTimeScores maps the tracked response-time bucket to a score.
var responseTimeScores = map[string]float64{
	"< 1 hour":   1.0,
	"< 2 hours":  0.9,
	"< 4 hours":  0.7,
	"< 8 hours":  0.5,
	"< 24 hours": 0.3,
}

const unknownResponseScore = 0.2

// Score computes the weighted match score of a professional snapshot against
// client preferences. It is pure and deterministic: the only clock it sees is
// the one passed in, so identical inputs always produce identical output.
func Score(pro models.Professional, prefs models.MatchPreferences, now time.Time) models.ScoreBreakdown {
	b := models.ScoreBreakdown{
		Availability: availabilityScore(pro.Live, now),
		Rating:       bayesianRatingScore(pro.Stats),
		Experience:   experienceScore(pro.Stats),
		ResponseTime: responseTimeScore(pro.Stats),
		PriceFit:     priceFitScore(pro, prefs),
	}
	b.Total = round3(b.Availability*AvailabilityWeight +
		b.Rating*RatingWeight +
		b.Experience*ExperienceWeight +
		b.ResponseTime*ResponseWeight +
		b.PriceFit*PriceWeight)
	b.Reason = recommendationReason(b)
	return b
}

// Rank scores and orders candidates descending by total. Ties break on higher
// total session count, then on id for a stable, deterministic order.
func Rank(pros []models.Professional, prefs models.MatchPreferences, now time.Time) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(pros))
	for _, p := range pros {
		candidates = append(candidates, models.Candidate{
			Professional: p,
			Score:        Score(p, prefs, now),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		if a.Professional.Stats.TotalSessions != b.Professional.Stats.TotalSessions {
			return a.Professional.Stats.TotalSessions > b.Professional.Stats.TotalSessions
		}
		return a.Professional.ID < b.Professional.ID
	})
	return candidates
}

// availabilityScore awards 0.7 for being online plus 0.3 for being available.
// A professional who is offline gets partial credit by recency of activity
// instead of the online portion.
func availabilityScore(live models.LiveState, now time.Time) float64 {
	var score float64
	if live.Online {
		score += 0.7
	} else if !live.LastActive.IsZero() {
		switch hours := now.Sub(live.LastActive).Hours(); {
		case hours < 1:
			score += 0.3
		case hours < 4:
			score += 0.2
		case hours < 12:
			score += 0.1
		}
	}
	if live.Available {
		score += 0.3
	}
	return math.Min(score, 1.0)
}

// bayesianRatingScore shrinks the raw mean toward the prior before
// normalizing a 1..5 rating to 0..1.
func bayesianRatingScore(stats models.Stats) float64 {
	n := float64(stats.TotalSessions)
	if n < 1 {
		n = 1
	}
	shrunk := (stats.AverageRating*n + RatingPrior*ShrinkageReviews) / (n + ShrinkageReviews)
	score := (shrunk - 1) / 4
	return math.Max(0, math.Min(score, 1.0))
}

func experienceScore(stats models.Stats) float64 {
	years := float64(stats.ExperienceYears)
	if years < 1 {
		years = 1
	}
	return math.Min(years/ExperienceCapYrs, 1.0)
}

func responseTimeScore(stats models.Stats) float64 {
	if score, ok := responseTimeScores[stats.AvgResponseTime]; ok {
		return score
	}
	return unknownResponseScore
}

// priceFitScore rewards rates below the client's ceiling. Without a stated
// ceiling the component is neutral.
func priceFitScore(pro models.Professional, prefs models.MatchPreferences) float64 {
	if prefs.MaxRate <= 0 {
		return NeutralPriceScore
	}
	rate := pro.Rates.RateFor(prefs.Channel)
	if rate <= 0 {
		return NeutralPriceScore
	}
	return math.Max(0, 1-rate/prefs.MaxRate)
}

// recommendationReason builds the human-readable summary shown next to a
// candidate in the client app.
func recommendationReason(b models.ScoreBreakdown) string {
	var reasons []string
	switch {
	case b.Availability >= 0.8:
		reasons = append(reasons, "Highly available")
	case b.Availability >= 0.5:
		reasons = append(reasons, "Good availability")
	}
	switch {
	case b.Rating >= 0.9:
		reasons = append(reasons, "Excellent ratings")
	case b.Rating >= 0.7:
		reasons = append(reasons, "Great reviews")
	}
	switch {
	case b.Experience >= 0.8:
		reasons = append(reasons, "Extensive experience")
	case b.Experience >= 0.5:
		reasons = append(reasons, "Good experience level")
	}
	if b.ResponseTime >= 0.8 {
		reasons = append(reasons, "Quick responder")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "Good overall match")
	}
	return strings.Join(reasons, ", ")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
