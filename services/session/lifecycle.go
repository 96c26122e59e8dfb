// services/session/lifecycle.go
package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	sessionRepo "quickconnect/database/repository/session"
	"quickconnect/models"
	"quickconnect/services/billing"
	"quickconnect/services/notification"
	"quickconnect/services/registry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lifecycle drives a consultation session through its state machine:
//
//	pending -> active <-> in_progress
//	active | in_progress -> {completed, cancelled, disconnected}
//	pending -> {declined, cancelled, expired}
//
// Terminal states are immutable except for late rating attachment on a
// completed session. All transitions for one session serialize on a
// per-session mutex so cost is computed exactly once.
type Lifecycle struct {
	Repo     sessionRepo.Repository
	Registry *registry.Registry
	Billing  billing.Processor
	Notifier notification.Enqueuer
	Logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewLifecycle wires the session state machine to its collaborators. Billing
// and Notifier may be nil in ephemeral setups; transitions still work, only
// the side effects are skipped.
func NewLifecycle(repo sessionRepo.Repository, reg *registry.Registry, proc billing.Processor, notifier notification.Enqueuer, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		Repo:     repo,
		Registry: reg,
		Billing:  proc,
		Notifier: notifier,
		Logger:   logger,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

func (l *Lifecycle) sessionLock(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// forgetLock drops a session's mutex entry once it reaches a terminal state,
// keeping the lock map bounded over the service lifetime. A straggler still
// holding the old mutex only ever observes a terminal record.
func (l *Lifecycle) forgetLock(id string) {
	l.mu.Lock()
	delete(l.locks, id)
	l.mu.Unlock()
}

// Create starts a pending session. The rate is snapshotted from the
// professional's current rate card for the requested channel and never
// changes afterwards, even if the professional's rates do.
func (l *Lifecycle) Create(ctx context.Context, pro *models.Professional, clientID, channel string) (*models.Session, error) {
	if channel == "" {
		channel = models.ChannelChat
	}
	now := l.now()
	sess := &models.Session{
		ID:             uuid.New().String(),
		ProfessionalID: pro.ID,
		ClientID:       clientID,
		Channel:        channel,
		Status:         models.SessionPending,
		Category:       pro.PrimaryCategory,
		RateUsed:       pro.Rates.RateFor(channel),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if channel != models.ChannelChat {
		sess.RoomID = fmt.Sprintf("%s_%s", channel, uuid.New().String()[:8])
	}
	if err := l.Repo.Insert(sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	l.Logger.Info("session created",
		zap.String("session", sess.ID),
		zap.String("professional", pro.ID),
		zap.String("client", clientID),
		zap.String("channel", channel),
		zap.Float64("rateUsed", sess.RateUsed))
	return sess, nil
}

// Get returns a session by id.
func (l *Lifecycle) Get(ctx context.Context, id string) (*models.Session, error) {
	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// SetChannel renegotiates the channel of a still-pending session, taking a
// fresh rate snapshot. Once the session activates the snapshot is frozen.
func (l *Lifecycle) SetChannel(ctx context.Context, id, channel string, rates models.RateCard) (*models.Session, error) {
	m := l.sessionLock(id)
	m.Lock()
	defer m.Unlock()

	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if sess.Status != models.SessionPending {
		return nil, &InvalidTransitionError{From: sess.Status, Attempted: sess.Status}
	}
	sess.Channel = channel
	sess.RateUsed = rates.RateFor(channel)
	sess.UpdatedAt = l.now()
	if err := l.Repo.Update(sess); err != nil {
		return nil, fmt.Errorf("failed to update session channel: %w", err)
	}
	return sess, nil
}

// Accept moves a pending session to active and stamps the actual start.
func (l *Lifecycle) Accept(ctx context.Context, id string) (*models.Session, error) {
	sess, err := l.transition(id, models.SessionActive, func(s *models.Session) {
		now := l.now()
		s.ActualStart = &now
	})
	if err != nil {
		return nil, err
	}
	l.notify(ctx, sess, models.EventSessionAccepted)
	return sess, nil
}

// Decline terminates a pending session from the professional's side.
func (l *Lifecycle) Decline(ctx context.Context, id string) (*models.Session, error) {
	sess, err := l.transition(id, models.SessionDeclined, func(s *models.Session) {
		now := l.now()
		s.EndedAt = &now
	})
	if err != nil {
		return nil, err
	}
	l.notify(ctx, sess, models.EventSessionDeclined)
	return sess, nil
}

// Cancel terminates a session that never reached billing.
func (l *Lifecycle) Cancel(ctx context.Context, id string) (*models.Session, error) {
	return l.transition(id, models.SessionCancelled, func(s *models.Session) {
		now := l.now()
		s.EndedAt = &now
	})
}

// Expire terminates a pending session whose negotiation window ran out.
func (l *Lifecycle) Expire(ctx context.Context, id string) (*models.Session, error) {
	return l.transition(id, models.SessionExpired, func(s *models.Session) {
		now := l.now()
		s.EndedAt = &now
	})
}

// BeginCall marks an active session as in-call.
func (l *Lifecycle) BeginCall(ctx context.Context, id string) (*models.Session, error) {
	return l.transition(id, models.SessionInProgress, func(*models.Session) {})
}

// EndCall returns an in-call session to plain active. Recording the elapsed
// window is RecordCallWindow's job, not this transition's.
func (l *Lifecycle) EndCall(ctx context.Context, id string) (*models.Session, error) {
	return l.transition(id, models.SessionActive, func(*models.Session) {})
}

// AppendMessage persists a chat message exchanged within a non-terminal
// session.
func (l *Lifecycle) AppendMessage(ctx context.Context, id, sender, text string) (*models.ChatMessage, error) {
	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if sess.IsTerminal() {
		return nil, &InvalidTransitionError{From: sess.Status, Attempted: sess.Status}
	}
	msg := &models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: id,
		Sender:    sender,
		Text:      text,
		CreatedAt: l.now(),
	}
	if err := l.Repo.SaveMessage(msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// RecordCallWindow accumulates call time for a session. Calls may reconnect,
// so windows are summed, never overwritten.
func (l *Lifecycle) RecordCallWindow(ctx context.Context, id string, startedAt, endedAt time.Time) (*models.Session, error) {
	m := l.sessionLock(id)
	m.Lock()
	defer m.Unlock()

	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !sess.IsActive() {
		return nil, &InvalidTransitionError{From: sess.Status, Attempted: sess.Status}
	}
	if endedAt.Before(startedAt) {
		return nil, fmt.Errorf("call window ends before it starts")
	}
	sess.CallSeconds += int(endedAt.Sub(startedAt).Seconds())
	sess.UpdatedAt = l.now()
	if err := l.Repo.Update(sess); err != nil {
		return nil, fmt.Errorf("failed to record call window: %w", err)
	}
	return sess, nil
}

// RecordCallQuality stores the reported quality of a call and any technical
// issues. Issues accumulate across reconnect segments; a completed session
// counts as clean only when it ends with none.
func (l *Lifecycle) RecordCallQuality(ctx context.Context, id, quality string, issues []string) (*models.Session, error) {
	if quality != "" && !models.ValidCallQuality(quality) {
		return nil, fmt.Errorf("unknown call quality %q", quality)
	}
	m := l.sessionLock(id)
	m.Lock()
	defer m.Unlock()

	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if sess.IsTerminal() {
		return nil, &InvalidTransitionError{From: sess.Status, Attempted: sess.Status}
	}
	if quality != "" {
		sess.CallQuality = quality
	}
	sess.CallIssues = append(sess.CallIssues, issues...)
	sess.UpdatedAt = l.now()
	if err := l.Repo.Update(sess); err != nil {
		return nil, fmt.Errorf("failed to record call quality: %w", err)
	}
	return sess, nil
}

// Complete finalizes a session and computes its cost exactly once. A repeat
// call is a no-op returning the existing terminal record, never a
// recomputation. When duration or cost overrides are not supplied, duration
// derives from recorded call windows, or from elapsed wall time, and cost is
// duration in minutes times the snapshotted rate.
func (l *Lifecycle) Complete(ctx context.Context, id string, finalDuration *int, finalCost *float64) (*models.Session, error) {
	m := l.sessionLock(id)
	m.Lock()
	defer m.Unlock()

	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if sess.Status == models.SessionCompleted {
		l.forgetLock(sess.ID)
		return sess, nil
	}
	if !sess.IsActive() {
		return nil, &InvalidTransitionError{From: sess.Status, Attempted: models.SessionCompleted}
	}

	l.finalize(sess, models.SessionCompleted, finalDuration, finalCost)
	l.bill(ctx, sess)
	if err := l.Repo.Update(sess); err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	l.forgetLock(sess.ID)
	if l.Registry != nil {
		l.Registry.VacateSlot(sess.ProfessionalID)
	}
	l.notify(ctx, sess, models.EventSessionCompleted)
	l.Logger.Info("session completed",
		zap.String("session", sess.ID),
		zap.Int("minutes", sess.DurationMinutes),
		zap.Float64("cost", sess.Cost))
	return sess, nil
}

// MarkDisconnected finalizes a session whose realtime channel dropped without
// an explicit end. Elapsed time is still billed: the client owes for the
// minutes that actually happened.
func (l *Lifecycle) MarkDisconnected(ctx context.Context, id string) (*models.Session, error) {
	m := l.sessionLock(id)
	m.Lock()
	defer m.Unlock()

	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if sess.Status == models.SessionDisconnected {
		l.forgetLock(sess.ID)
		return sess, nil
	}
	if !sess.IsActive() {
		return nil, &InvalidTransitionError{From: sess.Status, Attempted: models.SessionDisconnected}
	}

	l.finalize(sess, models.SessionDisconnected, nil, nil)
	l.bill(ctx, sess)
	if err := l.Repo.Update(sess); err != nil {
		return nil, fmt.Errorf("failed to mark session disconnected: %w", err)
	}
	l.forgetLock(sess.ID)
	if l.Registry != nil {
		l.Registry.VacateSlot(sess.ProfessionalID)
	}
	l.Logger.Warn("session disconnected",
		zap.String("session", sess.ID),
		zap.Int("minutes", sess.DurationMinutes),
		zap.Float64("cost", sess.Cost))
	return sess, nil
}

// AttachRating records a 1..5 rating on a completed session and queues the
// professional's aggregate recompute in the background.
func (l *Lifecycle) AttachRating(ctx context.Context, id string, rating int, review string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	m := l.sessionLock(id)
	m.Lock()
	defer m.Unlock()

	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return ErrNotFound
	}
	if sess.Status != models.SessionCompleted {
		return ErrNotRateable
	}
	sess.Rating = &rating
	sess.Review = review
	sess.UpdatedAt = l.now()
	if err := l.Repo.Update(sess); err != nil {
		return fmt.Errorf("failed to attach rating: %w", err)
	}
	if l.Notifier != nil {
		if err := l.Notifier.RecomputeStats(ctx, sess.ProfessionalID); err != nil {
			l.Logger.Warn("failed to enqueue stats recompute",
				zap.String("professional", sess.ProfessionalID), zap.Error(err))
		}
	}
	l.forgetLock(sess.ID)
	return nil
}

// finalize stamps the terminal status and computes duration and cost. This is
// the single place in the system where cost is calculated.
func (l *Lifecycle) finalize(sess *models.Session, status string, finalDuration *int, finalCost *float64) {
	now := l.now()
	if sess.EndedAt == nil {
		sess.EndedAt = &now
	}

	minutes := 0
	switch {
	case finalDuration != nil:
		minutes = *finalDuration
	case sess.CallSeconds > 0:
		minutes = int(math.Round(float64(sess.CallSeconds) / 60))
	case sess.ActualStart != nil:
		minutes = int(math.Round(sess.EndedAt.Sub(*sess.ActualStart).Minutes()))
	}
	if minutes < 0 {
		minutes = 0
	}
	sess.DurationMinutes = minutes

	if finalCost != nil {
		sess.Cost = *finalCost
	} else {
		sess.Cost = math.Round(float64(minutes)*sess.RateUsed*100) / 100
	}
	sess.Status = status
	sess.UpdatedAt = now
}

func (l *Lifecycle) bill(ctx context.Context, sess *models.Session) {
	if l.Billing == nil || sess.Cost <= 0 {
		return
	}
	ref, err := l.Billing.Charge(ctx, sess.ID, sess.Cost)
	if err != nil {
		// Billing failures never roll back the terminal transition; the
		// transaction is retried out of band against the recorded cost.
		l.Logger.Error("billing charge failed",
			zap.String("session", sess.ID), zap.Error(err))
		return
	}
	sess.TransactionRef = ref
}

func (l *Lifecycle) notify(ctx context.Context, sess *models.Session, event string) {
	if l.Notifier == nil {
		return
	}
	err := l.Notifier.SessionEvent(ctx, models.SessionEvent{
		SessionID:      sess.ID,
		ProfessionalID: sess.ProfessionalID,
		ClientID:       sess.ClientID,
		Event:          event,
		Channel:        sess.Channel,
		Cost:           sess.Cost,
	})
	if err != nil {
		l.Logger.Warn("failed to enqueue session notification",
			zap.String("session", sess.ID), zap.Error(err))
	}
}

// transition applies a simple status change guarded by the state machine.
func (l *Lifecycle) transition(id, to string, apply func(*models.Session)) (*models.Session, error) {
	m := l.sessionLock(id)
	m.Lock()
	defer m.Unlock()

	sess, err := l.Repo.GetByID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !allowed(sess.Status, to) {
		return nil, &InvalidTransitionError{From: sess.Status, Attempted: to}
	}
	sess.Status = to
	apply(sess)
	sess.UpdatedAt = l.now()
	if err := l.Repo.Update(sess); err != nil {
		return nil, fmt.Errorf("failed to transition session to %s: %w", to, err)
	}
	if sess.IsTerminal() {
		l.forgetLock(sess.ID)
	}
	return sess, nil
}

// allowed encodes the session state machine.
func allowed(from, to string) bool {
	switch from {
	case models.SessionPending:
		switch to {
		case models.SessionActive, models.SessionDeclined, models.SessionCancelled, models.SessionExpired:
			return true
		}
	case models.SessionActive:
		switch to {
		case models.SessionInProgress, models.SessionCompleted, models.SessionDisconnected, models.SessionCancelled:
			return true
		}
	case models.SessionInProgress:
		switch to {
		case models.SessionActive, models.SessionCompleted, models.SessionDisconnected, models.SessionCancelled:
			return true
		}
	}
	return false
}
