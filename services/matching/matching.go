// services/matching/matching.go
package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	professionalRepo "quickconnect/database/repository/professional"
	"quickconnect/models"
	"quickconnect/services/registry"
	"quickconnect/services/scoring"
	"quickconnect/services/session"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// DefaultCandidateLimit caps how many ranked candidates a request returns.
	DefaultCandidateLimit = 10
	// DefaultReservationTTL is the negotiation window for a reserved
	// professional before the lock expires.
	DefaultReservationTTL = 5 * time.Minute
	// candidateCacheTTL bounds staleness of cached match results.
	candidateCacheTTL = 5 * time.Minute
)

// Coordinator turns a match request into a ranked candidate list and, on
// client confirmation, a session handoff.
type Coordinator struct {
	Repo           professionalRepo.Repository
	Registry       *registry.Registry
	Lifecycle      *session.Lifecycle
	CacheClient    *redis.Client
	Logger         *zap.Logger
	CandidateLimit int
	ReservationTTL time.Duration
}

// NewCoordinator wires the coordinator with default tuning.
func NewCoordinator(repo professionalRepo.Repository, reg *registry.Registry, lc *session.Lifecycle, cache *redis.Client, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		Repo:           repo,
		Registry:       reg,
		Lifecycle:      lc,
		CacheClient:    cache,
		Logger:         logger,
		CandidateLimit: DefaultCandidateLimit,
		ReservationTTL: DefaultReservationTTL,
	}
}

// FindCandidates returns the ranked, filtered candidate list for a request.
// Results are cached briefly; a snapshot may be stale by the time of a lock
// attempt, which Reserve handles by failing and letting the caller retry with
// the next candidate.
func (c *Coordinator) FindCandidates(ctx context.Context, req models.MatchRequest) ([]models.Candidate, error) {
	cacheKey, cached := c.cachedCandidates(ctx, req)
	if cached != nil {
		return cached, nil
	}

	pros, err := c.Repo.GetApprovedByCategory(req.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve professionals: %w", err)
	}

	now := time.Now()
	eligible := make([]models.Professional, 0, len(pros))
	for _, p := range pros {
		// Overlay the registry's live view: the repository copy may lag
		// behind lock state.
		if live, ok := c.Registry.LiveState(p.ID); ok {
			p.Live = live
		}
		if req.Preferences.MinRating > 0 && p.Stats.AverageRating < req.Preferences.MinRating {
			continue
		}
		if req.Preferences.MaxRate > 0 && p.Rates.RateFor(req.Preferences.Channel) > req.Preferences.MaxRate {
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) == 0 {
		return nil, NewNoCandidatesError(req.Category)
	}

	candidates := scoring.Rank(eligible, req.Preferences, now)
	if limit := c.limit(); len(candidates) > limit {
		candidates = candidates[:limit]
	}
	c.storeCandidates(ctx, cacheKey, candidates)
	return candidates, nil
}

// Reserve places the negotiation lock on a professional for a client.
func (c *Coordinator) Reserve(professionalID, clientID string) (models.Reservation, error) {
	ttl := c.ReservationTTL
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	res, err := c.Registry.Acquire(professionalID, clientID, ttl)
	if err != nil {
		var locked *registry.AlreadyLockedError
		switch {
		case errors.As(err, &locked):
			return models.Reservation{}, NewAlreadyReservedError(professionalID, locked.Holder)
		case errors.Is(err, registry.ErrNotEligible), errors.Is(err, registry.ErrUnknownProfessional):
			return models.Reservation{}, NewUnavailableError(professionalID)
		default:
			return models.Reservation{}, fmt.Errorf("failed to reserve professional %s: %w", professionalID, err)
		}
	}
	return res, nil
}

// ReserveBest walks the ranked candidate list and reserves the first
// professional whose lock attempt succeeds. Candidate snapshots go stale
// under concurrency, so losing a race to another client just moves on to the
// next candidate.
func (c *Coordinator) ReserveBest(ctx context.Context, req models.MatchRequest) (models.Reservation, *models.Candidate, error) {
	candidates, err := c.FindCandidates(ctx, req)
	if err != nil {
		return models.Reservation{}, nil, err
	}
	for i := range candidates {
		res, err := c.Reserve(candidates[i].Professional.ID, req.ClientID)
		if err == nil {
			return res, &candidates[i], nil
		}
		if IsCode(err, CodeAlreadyReserved) || IsCode(err, CodeProfessionalUnavailable) {
			c.Logger.Debug("candidate taken, trying next",
				zap.String("professional", candidates[i].Professional.ID))
			continue
		}
		return models.Reservation{}, nil, err
	}
	return models.Reservation{}, nil, NewNoCandidatesError(req.Category)
}

// Confirm converts a reservation into a pending session. The session then
// occupies one workload slot and the negotiation lock is dropped: the
// session's own status is what prevents overbooking from here on.
func (c *Coordinator) Confirm(ctx context.Context, res models.Reservation, channel string) (*models.Session, error) {
	pro, err := c.Repo.GetByID(res.ProfessionalID)
	if err != nil {
		return nil, NewUnavailableError(res.ProfessionalID)
	}

	sess, err := c.Lifecycle.Create(ctx, pro, res.ClientID, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to create session from reservation: %w", err)
	}
	if err := c.Registry.OccupySlot(res.ProfessionalID, res.Token); err != nil {
		// The lock expired between reserve and confirm. The session no
		// longer has a guaranteed slot, so cancel it rather than overbook.
		if _, cErr := c.Lifecycle.Cancel(ctx, sess.ID); cErr != nil {
			c.Logger.Warn("failed to cancel orphaned session",
				zap.String("session", sess.ID), zap.Error(cErr))
		}
		return nil, NewUnavailableError(res.ProfessionalID)
	}
	return sess, nil
}

// Abandon releases a reservation without creating a session.
func (c *Coordinator) Abandon(res models.Reservation) error {
	if err := c.Registry.Release(res.ProfessionalID, res.Token); err != nil {
		if errors.Is(err, registry.ErrUnknownProfessional) {
			return nil
		}
		return fmt.Errorf("failed to abandon reservation: %w", err)
	}
	return nil
}

func (c *Coordinator) limit() int {
	if c.CandidateLimit > 0 {
		return c.CandidateLimit
	}
	return DefaultCandidateLimit
}

// cachedCandidates returns the cache key for a request and any fresh cached
// result for it.
func (c *Coordinator) cachedCandidates(ctx context.Context, req models.MatchRequest) (string, []models.Candidate) {
	reqBytes, err := json.Marshal(struct {
		Category    string                  `json:"category"`
		Preferences models.MatchPreferences `json:"preferences"`
	}{req.Category, req.Preferences})
	if err != nil {
		return "", nil
	}
	key := fmt.Sprintf("match:%x", reqBytes)
	if c.CacheClient == nil {
		return key, nil
	}

	cached, err := c.CacheClient.Get(ctx, key).Result()
	if err != nil || cached == "" {
		return key, nil
	}
	var candidates []models.Candidate
	if err := json.Unmarshal([]byte(cached), &candidates); err != nil {
		// Corrupt cache entry falls through to recomputation.
		return key, nil
	}
	return key, candidates
}

func (c *Coordinator) storeCandidates(ctx context.Context, key string, candidates []models.Candidate) {
	if c.CacheClient == nil || key == "" {
		return
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	if err := c.CacheClient.Set(ctx, key, data, candidateCacheTTL).Err(); err != nil {
		c.Logger.Warn("failed to cache match result", zap.Error(err))
	}
}
