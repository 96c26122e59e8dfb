package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	professionalRepo "quickconnect/database/repository/professional"
	sessionRepo "quickconnect/database/repository/session"
	"quickconnect/models"
	"quickconnect/services/registry"
	"quickconnect/services/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// fakeProRepo serves a fixed directory of professionals.
type fakeProRepo struct {
	mu   sync.Mutex
	pros map[string]models.Professional
}

func newFakeProRepo(pros ...models.Professional) *fakeProRepo {
	r := &fakeProRepo{pros: make(map[string]models.Professional)}
	for _, p := range pros {
		r.pros[p.ID] = p
	}
	return r
}

func (r *fakeProRepo) Create(pro *models.Professional) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pros[pro.ID] = *pro
	return nil
}

func (r *fakeProRepo) Update(pro *models.Professional) error { return r.Create(pro) }

func (r *fakeProRepo) GetByID(id string) (*models.Professional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pros[id]
	if !ok {
		return nil, errors.New("not found")
	}
	out := p
	return &out, nil
}

func (r *fakeProRepo) GetAll() ([]models.Professional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Professional, 0, len(r.pros))
	for _, p := range r.pros {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProRepo) GetApprovedByCategory(category string) ([]models.Professional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Professional
	for _, p := range r.pros {
		if p.IsApproved() && p.InCategory(category) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeProRepo) Search(professionalRepo.SearchFilters) ([]models.Professional, error) {
	return r.GetAll()
}

func (r *fakeProRepo) SaveLiveState(id string, live models.LiveState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pros[id]; ok {
		p.Live = live
		r.pros[id] = p
	}
	return nil
}

func (r *fakeProRepo) SaveStats(id string, stats models.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pros[id]; ok {
		p.Stats = stats
		r.pros[id] = p
	}
	return nil
}

// fakeSessRepo is the minimal session store Confirm needs.
type fakeSessRepo struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newFakeSessRepo() *fakeSessRepo {
	return &fakeSessRepo{sessions: make(map[string]models.Session)}
}

func (m *fakeSessRepo) Insert(sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = *sess
	return nil
}

func (m *fakeSessRepo) Update(sess *models.Session) error { return m.Insert(sess) }

func (m *fakeSessRepo) GetByID(id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	out := sess
	return &out, nil
}

func (m *fakeSessRepo) GetActiveByPair(string, string) (*models.Session, error) { return nil, nil }

func (m *fakeSessRepo) CompletionStatsFor(string) (sessionRepo.CompletionStats, error) {
	return sessionRepo.CompletionStats{}, nil
}

func (m *fakeSessRepo) SaveMessage(*models.ChatMessage) error { return nil }

func approvedPro(id string, rating float64, sessions int) models.Professional {
	return models.Professional{
		ID:              id,
		Name:            id,
		PrimaryCategory: "legal",
		Status:          models.StatusApproved,
		Rates:           models.RateCard{Base: 40},
		Live: models.LiveState{
			Online:      true,
			Available:   true,
			MaxWorkload: 2,
			LastActive:  time.Now(),
		},
		Stats: models.Stats{
			AverageRating:   rating,
			TotalSessions:   sessions,
			ExperienceYears: 5,
			AvgResponseTime: "< 1 hour",
		},
	}
}

type coordFixture struct {
	coord    *Coordinator
	repo     *fakeProRepo
	registry *registry.Registry
	sessions *fakeSessRepo
	redis    *miniredis.Miniredis
}

func newCoordFixture(t *testing.T, pros ...models.Professional) *coordFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := newFakeProRepo(pros...)
	reg := registry.New(repo, nil)
	for _, p := range pros {
		reg.Register(p.ID, p.Live)
	}
	sessRepo := newFakeSessRepo()
	lc := session.NewLifecycle(sessRepo, reg, nil, nil, nil)
	coord := NewCoordinator(repo, reg, lc, cache, nil)
	return &coordFixture{coord: coord, repo: repo, registry: reg, sessions: sessRepo, redis: mr}
}

func TestFindCandidatesRanksAndLimits(t *testing.T) {
	pros := []models.Professional{
		approvedPro("pro-good", 4.8, 300),
		approvedPro("pro-mid", 4.0, 100),
		approvedPro("pro-low", 2.5, 80),
	}
	f := newCoordFixture(t, pros...)

	candidates, err := f.coord.FindCandidates(context.Background(), models.MatchRequest{Category: "legal"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].Professional.ID != "pro-good" {
		t.Fatalf("best candidate should rank first, got %s", candidates[0].Professional.ID)
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score.Total > candidates[i-1].Score.Total {
			t.Fatal("candidates not sorted by score")
		}
	}
}

func TestFindCandidatesAppliesPreferences(t *testing.T) {
	cheap := approvedPro("pro-cheap", 3.8, 50)
	cheap.Rates.Base = 20
	pricey := approvedPro("pro-pricey", 4.9, 400)
	pricey.Rates.Base = 90
	f := newCoordFixture(t, cheap, pricey)

	candidates, err := f.coord.FindCandidates(context.Background(), models.MatchRequest{
		Category:    "legal",
		Preferences: models.MatchPreferences{MaxRate: 50},
	})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Professional.ID != "pro-cheap" {
		t.Fatalf("rate ceiling not applied: %+v", candidates)
	}

	if _, err := f.coord.FindCandidates(context.Background(), models.MatchRequest{
		Category:    "legal",
		Preferences: models.MatchPreferences{MinRating: 4.95},
	}); !IsCode(err, CodeNoCandidates) {
		t.Fatalf("expected no candidates, got %v", err)
	}
}

func TestFindCandidatesLimit(t *testing.T) {
	var pros []models.Professional
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		pros = append(pros, approvedPro("pro-"+id, 4.0, 100))
	}
	f := newCoordFixture(t, pros...)
	f.coord.CandidateLimit = 2

	candidates, err := f.coord.FindCandidates(context.Background(), models.MatchRequest{Category: "legal"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("limit not applied: got %d", len(candidates))
	}
}

func TestFindCandidatesServedFromCache(t *testing.T) {
	f := newCoordFixture(t, approvedPro("pro-1", 4.5, 100))
	ctx := context.Background()
	req := models.MatchRequest{Category: "legal"}

	first, err := f.coord.FindCandidates(ctx, req)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}

	// Removing the professional from the directory does not affect the
	// cached snapshot within its TTL.
	f.repo.mu.Lock()
	delete(f.repo.pros, "pro-1")
	f.repo.mu.Unlock()

	second, err := f.coord.FindCandidates(ctx, req)
	if err != nil {
		t.Fatalf("cached find failed: %v", err)
	}
	if len(second) != len(first) || second[0].Professional.ID != "pro-1" {
		t.Fatalf("expected cache hit, got %+v", second)
	}

	// Once the cache entry lapses the change becomes visible.
	f.redis.FastForward(candidateCacheTTL + time.Second)
	if _, err := f.coord.FindCandidates(ctx, req); !IsCode(err, CodeNoCandidates) {
		t.Fatalf("expected no candidates after cache expiry, got %v", err)
	}
}

func TestReserveMapsRegistryErrors(t *testing.T) {
	f := newCoordFixture(t, approvedPro("pro-1", 4.5, 100))

	res, err := f.coord.Reserve("pro-1", "client-a")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if res.Token == "" || res.ProfessionalID != "pro-1" {
		t.Fatalf("bad reservation: %+v", res)
	}

	if _, err := f.coord.Reserve("pro-1", "client-b"); !IsCode(err, CodeAlreadyReserved) {
		t.Fatalf("expected alreadyReserved, got %v", err)
	}
	if _, err := f.coord.Reserve("pro-missing", "client-b"); !IsCode(err, CodeProfessionalUnavailable) {
		t.Fatalf("expected professionalUnavailable, got %v", err)
	}
}

func TestReserveBestSkipsTakenCandidates(t *testing.T) {
	best := approvedPro("pro-best", 5.0, 500)
	second := approvedPro("pro-second", 4.2, 200)
	f := newCoordFixture(t, best, second)
	ctx := context.Background()

	// Prime the cache with both candidates free, then let another client grab
	// the top one. The stale snapshot still lists pro-best first, so the lock
	// attempt must fail over to the runner-up.
	ranked, err := f.coord.FindCandidates(ctx, models.MatchRequest{Category: "legal"})
	if err != nil {
		t.Fatalf("prime failed: %v", err)
	}
	if ranked[0].Professional.ID != "pro-best" {
		t.Fatalf("expected pro-best on top, got %s", ranked[0].Professional.ID)
	}
	if _, err := f.coord.Reserve("pro-best", "client-other"); err != nil {
		t.Fatalf("setup reserve failed: %v", err)
	}

	res, cand, err := f.coord.ReserveBest(ctx, models.MatchRequest{
		ClientID: "client-a",
		Category: "legal",
	})
	if err != nil {
		t.Fatalf("reserve best failed: %v", err)
	}
	if res.ProfessionalID != "pro-second" || cand.Professional.ID != "pro-second" {
		t.Fatalf("expected fallback to second candidate, got %s", res.ProfessionalID)
	}
}

func TestReserveBestNoCandidatesLeft(t *testing.T) {
	only := approvedPro("pro-only", 4.0, 10)
	f := newCoordFixture(t, only)

	if _, err := f.coord.Reserve("pro-only", "client-other"); err != nil {
		t.Fatalf("setup reserve failed: %v", err)
	}
	if _, _, err := f.coord.ReserveBest(context.Background(), models.MatchRequest{
		ClientID: "client-a",
		Category: "legal",
	}); !IsCode(err, CodeNoCandidates) {
		t.Fatalf("expected noCandidates, got %v", err)
	}
}

func TestConfirmCreatesSessionAndOccupiesSlot(t *testing.T) {
	f := newCoordFixture(t, approvedPro("pro-1", 4.5, 100))
	ctx := context.Background()

	res, err := f.coord.Reserve("pro-1", "client-a")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	sess, err := f.coord.Confirm(ctx, res, models.ChannelChat)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if sess.Status != models.SessionPending || sess.ProfessionalID != "pro-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	live, _ := f.registry.LiveState("pro-1")
	if live.Lock != nil {
		t.Fatal("negotiation lock must convert to a workload slot")
	}
	if live.Workload != 1 {
		t.Fatalf("expected workload 1, got %d", live.Workload)
	}
}

func TestConfirmWithStaleReservation(t *testing.T) {
	f := newCoordFixture(t, approvedPro("pro-1", 4.5, 100))
	ctx := context.Background()

	res, err := f.coord.Reserve("pro-1", "client-a")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	// The reservation is released before confirmation arrives.
	if err := f.coord.Abandon(res); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}

	if _, err := f.coord.Confirm(ctx, res, models.ChannelChat); !IsCode(err, CodeProfessionalUnavailable) {
		t.Fatalf("expected professionalUnavailable, got %v", err)
	}
	// The orphaned session must not linger as a live one.
	for _, sess := range f.sessions.sessions {
		if !sess.IsTerminal() {
			t.Fatalf("orphaned session left non-terminal: %+v", sess)
		}
	}
}

func TestAbandonIdempotent(t *testing.T) {
	f := newCoordFixture(t, approvedPro("pro-1", 4.5, 100))

	res, err := f.coord.Reserve("pro-1", "client-a")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.coord.Abandon(res); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	if err := f.coord.Abandon(res); err != nil {
		t.Fatalf("repeat abandon should be a no-op, got %v", err)
	}
	live, _ := f.registry.LiveState("pro-1")
	if !live.Available {
		t.Fatal("abandon must restore availability")
	}
}
