package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sessionRepo "quickconnect/database/repository/session"
	"quickconnect/models"
)

// memRepo is an in-memory session store for lifecycle tests.
type memRepo struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	messages []models.ChatMessage
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]models.Session)}
}

func (m *memRepo) Insert(sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = *sess
	return nil
}

func (m *memRepo) Update(sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ID]; !ok {
		return errors.New("not found")
	}
	m.sessions[sess.ID] = *sess
	return nil
}

func (m *memRepo) GetByID(id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	out := sess
	return &out, nil
}

func (m *memRepo) GetActiveByPair(professionalID, clientID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if sess.ProfessionalID == professionalID && sess.ClientID == clientID && !sess.IsTerminal() {
			out := sess
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memRepo) CompletionStatsFor(professionalID string) (sessionRepo.CompletionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats sessionRepo.CompletionStats
	for _, sess := range m.sessions {
		if sess.ProfessionalID != professionalID || !sess.IsTerminal() {
			continue
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
	return stats, nil
}

func (m *memRepo) SaveMessage(msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

// fakeBilling records charges and can be told to fail.
type fakeBilling struct {
	mu      sync.Mutex
	charges []float64
	fail    bool
}

func (f *fakeBilling) Charge(ctx context.Context, sessionID string, amount float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("card declined")
	}
	f.charges = append(f.charges, amount)
	return "txn-" + sessionID, nil
}

// fakeEnqueuer records queued work.
type fakeEnqueuer struct {
	mu         sync.Mutex
	events     []models.SessionEvent
	recomputes []string
}

func (f *fakeEnqueuer) SessionEvent(ctx context.Context, ev models.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEnqueuer) RecomputeStats(ctx context.Context, professionalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputes = append(f.recomputes, professionalID)
	return nil
}

func videoPro() *models.Professional {
	return &models.Professional{
		ID:              "pro-1",
		Name:            "Dr. Achieng",
		PrimaryCategory: "medical",
		Status:          models.StatusApproved,
		Rates:           models.RateCard{Base: 30, Video: 50},
	}
}

type fixture struct {
	lc      *Lifecycle
	repo    *memRepo
	billing *fakeBilling
	queue   *fakeEnqueuer
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	bill := &fakeBilling{}
	queue := &fakeEnqueuer{}
	lc := NewLifecycle(repo, nil, bill, queue, nil)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	lc.now = func() time.Time { return clock }
	return &fixture{lc: lc, repo: repo, billing: bill, queue: queue, clock: &clock}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestCreateSnapshotsRate(t *testing.T) {
	f := newFixture(t)
	pro := videoPro()

	sess, err := f.lc.Create(context.Background(), pro, "client-1", models.ChannelVideo)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sess.Status != models.SessionPending {
		t.Fatalf("new session should be pending, got %s", sess.Status)
	}
	if sess.RateUsed != 50 {
		t.Fatalf("video rate should be snapshotted, got %v", sess.RateUsed)
	}
	if sess.RoomID == "" {
		t.Fatal("video session needs a room id")
	}

	// A later rate change must not affect the stored snapshot.
	pro.Rates.Video = 500
	stored, _ := f.repo.GetByID(sess.ID)
	if stored.RateUsed != 50 {
		t.Fatalf("rate snapshot mutated: %v", stored.RateUsed)
	}
}

func TestChatSessionFallsBackToBaseRate(t *testing.T) {
	f := newFixture(t)
	sess, err := f.lc.Create(context.Background(), videoPro(), "client-1", models.ChannelChat)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sess.RateUsed != 30 {
		t.Fatalf("chat should fall back to base rate, got %v", sess.RateUsed)
	}
	if sess.RoomID != "" {
		t.Fatal("chat sessions have no call room")
	}
}

func TestCompleteTenMinuteVideoCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	if _, err := f.lc.Accept(ctx, sess.ID); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	start := *f.clock
	f.advance(10 * time.Minute)
	if _, err := f.lc.RecordCallWindow(ctx, sess.ID, start, *f.clock); err != nil {
		t.Fatalf("record window failed: %v", err)
	}

	done, err := f.lc.Complete(ctx, sess.ID, nil, nil)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.DurationMinutes != 10 {
		t.Fatalf("expected 10 minutes, got %d", done.DurationMinutes)
	}
	if done.Cost != 500.00 {
		t.Fatalf("expected cost 500.00, got %v", done.Cost)
	}
	if done.TransactionRef == "" {
		t.Fatal("expected a transaction reference from billing")
	}
	if len(f.billing.charges) != 1 || f.billing.charges[0] != 500.00 {
		t.Fatalf("unexpected charges: %v", f.billing.charges)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)
	f.advance(5 * time.Minute)

	first, err := f.lc.Complete(ctx, sess.ID, nil, nil)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	f.advance(30 * time.Minute)
	second, err := f.lc.Complete(ctx, sess.ID, nil, nil)
	if err != nil {
		t.Fatalf("repeat complete failed: %v", err)
	}
	if second.Cost != first.Cost || second.DurationMinutes != first.DurationMinutes {
		t.Fatalf("repeat complete recomputed: %v/%d vs %v/%d",
			second.Cost, second.DurationMinutes, first.Cost, first.DurationMinutes)
	}
	if len(f.billing.charges) != 1 {
		t.Fatalf("billing must run once, got %d charges", len(f.billing.charges))
	}
}

func TestCompleteWithOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)
	f.advance(42 * time.Minute)

	duration := 15
	cost := 333.33
	done, err := f.lc.Complete(ctx, sess.ID, &duration, &cost)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.DurationMinutes != 15 || done.Cost != 333.33 {
		t.Fatalf("overrides ignored: %d minutes, %v cost", done.DurationMinutes, done.Cost)
	}
}

func TestDisconnectBillsElapsedMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)
	f.advance(3 * time.Minute)

	done, err := f.lc.MarkDisconnected(ctx, sess.ID)
	if err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if done.Status != models.SessionDisconnected {
		t.Fatalf("expected disconnected, got %s", done.Status)
	}
	if done.DurationMinutes != 3 {
		t.Fatalf("expected 3 elapsed minutes, got %d", done.DurationMinutes)
	}
	if done.Cost != 150.00 {
		t.Fatalf("expected cost 150.00, got %v", done.Cost)
	}
	// Repeat disconnect is a no-op on the terminal record.
	again, err := f.lc.MarkDisconnected(ctx, sess.ID)
	if err != nil || again.Cost != done.Cost {
		t.Fatalf("repeat disconnect changed the record: %v, %v", err, again.Cost)
	}
}

func TestMultipleCallWindowsAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)

	first := *f.clock
	f.advance(4 * time.Minute)
	f.lc.RecordCallWindow(ctx, sess.ID, first, *f.clock)

	f.advance(10 * time.Minute) // gap between reconnects is not billed
	second := *f.clock
	f.advance(6 * time.Minute)
	f.lc.RecordCallWindow(ctx, sess.ID, second, *f.clock)

	done, err := f.lc.Complete(ctx, sess.ID, nil, nil)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.DurationMinutes != 10 {
		t.Fatalf("windows should sum to 10 minutes, got %d", done.DurationMinutes)
	}
	if done.Cost != 500.00 {
		t.Fatalf("expected cost 500.00, got %v", done.Cost)
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)

	// Completing a pending session skips the active phase.
	if _, err := f.lc.Complete(ctx, sess.ID, nil, nil); err == nil {
		t.Fatal("pending session must not complete directly")
	} else {
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
		if invalid.From != models.SessionPending {
			t.Fatalf("wrong From: %s", invalid.From)
		}
	}

	f.lc.Decline(ctx, sess.ID)
	if _, err := f.lc.Accept(ctx, sess.ID); err == nil {
		t.Fatal("declined session must not re-activate")
	}
}

func TestDeclineEnqueuesNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	if _, err := f.lc.Decline(ctx, sess.ID); err != nil {
		t.Fatalf("decline failed: %v", err)
	}
	if len(f.queue.events) != 1 || f.queue.events[0].Event != models.EventSessionDeclined {
		t.Fatalf("expected a declined event, got %+v", f.queue.events)
	}
}

func TestAttachRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)

	if err := f.lc.AttachRating(ctx, sess.ID, 5, "great"); !errors.Is(err, ErrNotRateable) {
		t.Fatalf("rating before completion must be refused, got %v", err)
	}

	f.advance(2 * time.Minute)
	f.lc.Complete(ctx, sess.ID, nil, nil)

	if err := f.lc.AttachRating(ctx, sess.ID, 6, ""); err == nil {
		t.Fatal("out-of-range rating must be refused")
	}
	if err := f.lc.AttachRating(ctx, sess.ID, 5, "great"); err != nil {
		t.Fatalf("rating failed: %v", err)
	}
	stored, _ := f.repo.GetByID(sess.ID)
	if stored.Rating == nil || *stored.Rating != 5 || stored.Review != "great" {
		t.Fatalf("rating not stored: %+v", stored)
	}
	if len(f.queue.recomputes) != 1 || f.queue.recomputes[0] != "pro-1" {
		t.Fatalf("expected one recompute for pro-1, got %v", f.queue.recomputes)
	}
}

func TestBillingFailureKeepsTerminalState(t *testing.T) {
	f := newFixture(t)
	f.billing.fail = true
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)
	f.advance(5 * time.Minute)

	done, err := f.lc.Complete(ctx, sess.ID, nil, nil)
	if err != nil {
		t.Fatalf("complete must survive billing failure: %v", err)
	}
	if done.Status != models.SessionCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.TransactionRef != "" {
		t.Fatal("failed charge must not record a transaction ref")
	}
	if done.Cost != 250.00 {
		t.Fatalf("cost must still be recorded, got %v", done.Cost)
	}
}

func TestSetChannelOnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pro := videoPro()
	sess, _ := f.lc.Create(ctx, pro, "client-1", models.ChannelChat)

	updated, err := f.lc.SetChannel(ctx, sess.ID, models.ChannelVideo, pro.Rates)
	if err != nil {
		t.Fatalf("channel change failed: %v", err)
	}
	if updated.RateUsed != 50 {
		t.Fatalf("renegotiation must re-snapshot the rate, got %v", updated.RateUsed)
	}

	f.lc.Accept(ctx, sess.ID)
	if _, err := f.lc.SetChannel(ctx, sess.ID, models.ChannelChat, pro.Rates); err == nil {
		t.Fatal("channel change after activation must be refused")
	}
}

func TestCallStateTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)

	in, err := f.lc.BeginCall(ctx, sess.ID)
	if err != nil {
		t.Fatalf("begin call failed: %v", err)
	}
	if in.Status != models.SessionInProgress {
		t.Fatalf("expected in_progress, got %s", in.Status)
	}
	out, err := f.lc.EndCall(ctx, sess.ID)
	if err != nil {
		t.Fatalf("end call failed: %v", err)
	}
	if out.Status != models.SessionActive {
		t.Fatalf("expected active, got %s", out.Status)
	}
	// Completing straight out of a call is also legal.
	f.lc.BeginCall(ctx, sess.ID)
	if _, err := f.lc.Complete(ctx, sess.ID, nil, nil); err != nil {
		t.Fatalf("complete from in_progress failed: %v", err)
	}
}

func TestRecordCallQuality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, sess.ID)

	if _, err := f.lc.RecordCallQuality(ctx, sess.ID, "stellar", nil); err == nil {
		t.Fatal("unknown quality value must be refused")
	}

	if _, err := f.lc.RecordCallQuality(ctx, sess.ID, models.QualityPoor, []string{"echo"}); err != nil {
		t.Fatalf("record quality failed: %v", err)
	}
	// A second call report accumulates issues and overwrites the verdict.
	updated, err := f.lc.RecordCallQuality(ctx, sess.ID, models.QualityFair, []string{"dropped_frames"})
	if err != nil {
		t.Fatalf("second record failed: %v", err)
	}
	if updated.CallQuality != models.QualityFair {
		t.Fatalf("expected quality fair, got %q", updated.CallQuality)
	}
	if len(updated.CallIssues) != 2 || updated.CallIssues[0] != "echo" || updated.CallIssues[1] != "dropped_frames" {
		t.Fatalf("issues did not accumulate: %v", updated.CallIssues)
	}

	f.advance(2 * time.Minute)
	f.lc.Complete(ctx, sess.ID, nil, nil)
	if _, err := f.lc.RecordCallQuality(ctx, sess.ID, models.QualityGood, nil); err == nil {
		t.Fatal("quality on a terminal session must be refused")
	}
	stored, _ := f.repo.GetByID(sess.ID)
	if stored.CallQuality != models.QualityFair || len(stored.CallIssues) != 2 {
		t.Fatalf("quality lost on completion: %+v", stored)
	}
}

func TestCallIssuesExcludeCleanCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	troubled, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, troubled.ID)
	f.lc.RecordCallQuality(ctx, troubled.ID, models.QualityPoor, []string{"no_audio"})
	f.advance(2 * time.Minute)
	f.lc.Complete(ctx, troubled.ID, nil, nil)

	clean, _ := f.lc.Create(ctx, videoPro(), "client-2", models.ChannelVideo)
	f.lc.Accept(ctx, clean.ID)
	f.advance(2 * time.Minute)
	f.lc.Complete(ctx, clean.ID, nil, nil)

	stats, err := f.repo.CompletionStatsFor("pro-1")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Completed != 2 {
		t.Fatalf("expected 2 completed, got %d", stats.Completed)
	}
	if stats.CompletedClean != 1 {
		t.Fatalf("session with issues must not count as clean: %+v", stats)
	}
}

func TestTerminalSessionPrunesLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completed, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelVideo)
	f.lc.Accept(ctx, completed.ID)
	f.advance(time.Minute)
	f.lc.Complete(ctx, completed.ID, nil, nil)

	declined, _ := f.lc.Create(ctx, videoPro(), "client-2", models.ChannelVideo)
	f.lc.Decline(ctx, declined.ID)

	f.lc.mu.Lock()
	remaining := len(f.lc.locks)
	f.lc.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("terminal sessions must not retain mutex entries, %d left", remaining)
	}

	// Late rating briefly revives an entry; it is dropped again afterwards.
	if err := f.lc.AttachRating(ctx, completed.ID, 4, "fine"); err != nil {
		t.Fatalf("rating failed: %v", err)
	}
	f.lc.mu.Lock()
	remaining = len(f.lc.locks)
	f.lc.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("rating must not leak a mutex entry, %d left", remaining)
	}
}

func TestAppendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.lc.Create(ctx, videoPro(), "client-1", models.ChannelChat)

	msg, err := f.lc.AppendMessage(ctx, sess.ID, "client", "hello")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if msg.SessionID != sess.ID || msg.Text != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	f.lc.Cancel(ctx, sess.ID)
	if _, err := f.lc.AppendMessage(ctx, sess.ID, "client", "too late"); err == nil {
		t.Fatal("messages on a terminal session must be refused")
	}
}
