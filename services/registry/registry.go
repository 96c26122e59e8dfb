// services/registry/registry.go
package registry

import (
	"sync"
	"time"

	"quickconnect/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StateStore persists live availability state. Writes are best effort: the
// in-memory registry remains authoritative between restarts.
type StateStore interface {
	SaveLiveState(id string, live models.LiveState) error
}

// EventType identifies lock lifecycle events pushed to subscribers.
type EventType string

const (
	EventLocked   EventType = "locked"
	EventReleased EventType = "released"
)

// Event describes a lock transition, consumed by the realtime gateway to
// broadcast availability changes.
type Event struct {
	Type           EventType
	ProfessionalID string
	ClientID       string
	Reason         string
}

type entry struct {
	mu   sync.Mutex
	live models.LiveState
}

// Registry is the single source of truth for whether a professional can start
// a new session, and for mutual exclusion during the negotiation window.
// Every live-field mutation in the system goes through here; the keyed store
// is created at service start and cleared only on restart.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	store  StateStore
	logger *zap.Logger

	subMu       sync.RWMutex
	subscribers []func(Event)

	now func() time.Time
}

// New creates an empty registry. store may be nil for ephemeral operation.
func New(store StateStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Register seeds or refreshes a professional's live state, typically at
// service start from the persistence layer.
func (r *Registry) Register(id string, live models.LiveState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.mu.Lock()
		e.live = live
		e.mu.Unlock()
		return
	}
	r.entries[id] = &entry{live: live}
}

// Subscribe adds a hook invoked on every lock/release transition. Hooks run
// synchronously outside the per-professional mutex, so events for one
// professional arrive in transition order; hooks must not block.
func (r *Registry) Subscribe(fn func(Event)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Registry) publish(ev Event) {
	r.subMu.RLock()
	subs := make([]func(Event), len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// LiveState returns a copy of a professional's live state.
func (r *Registry) LiveState(id string) (models.LiveState, bool) {
	e, ok := r.get(id)
	if !ok {
		return models.LiveState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live, true
}

// Acquire takes an exclusive, time-bounded lock on a professional for a
// client. The whole check-and-install is a single atomic unit under the
// per-professional mutex: concurrent acquires observe either the state before
// or after, never in between. An expired lock is cleared in place, so a fresh
// acquire never waits on the background sweep.
func (r *Registry) Acquire(professionalID, clientID string, ttl time.Duration) (models.Reservation, error) {
	e, ok := r.get(professionalID)
	if !ok {
		return models.Reservation{}, ErrUnknownProfessional
	}

	now := r.now()
	e.mu.Lock()

	if e.live.Lock.Expired(now) {
		e.live.Lock = nil
		e.live.Available = e.live.Workload < e.live.MaxWorkload
	}
	lock := e.live.Lock
	if lock != nil && lock.Holder != clientID {
		e.mu.Unlock()
		return models.Reservation{}, &AlreadyLockedError{Holder: lock.Holder}
	}
	if lock == nil {
		// Eligibility only gates fresh acquisition; the holder may refresh
		// an existing lock even if their own lock flipped availability off.
		if !e.live.Online || !e.live.Available || e.live.Workload >= e.live.MaxWorkload {
			e.mu.Unlock()
			return models.Reservation{}, ErrNotEligible
		}
	}

	token := uuid.New().String()
	e.live.Lock = &models.LockInfo{
		Holder:     clientID,
		Token:      token,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	e.live.Available = false
	r.persist(professionalID, e.live)
	res := models.Reservation{
		ProfessionalID: professionalID,
		ClientID:       clientID,
		Token:          token,
		ExpiresAt:      e.live.Lock.ExpiresAt,
	}
	e.mu.Unlock()

	r.logger.Debug("lock acquired",
		zap.String("professional", professionalID),
		zap.String("client", clientID),
		zap.Duration("ttl", ttl))
	r.publish(Event{Type: EventLocked, ProfessionalID: professionalID, ClientID: clientID})
	return res, nil
}

// Release clears a lock by token. Releasing an already-released lock is a
// no-op success: client disconnects race with explicit release calls and both
// paths must be safe.
func (r *Registry) Release(professionalID, token string) error {
	e, ok := r.get(professionalID)
	if !ok {
		return ErrUnknownProfessional
	}

	e.mu.Lock()
	lock := e.live.Lock
	if lock == nil {
		e.mu.Unlock()
		return nil
	}
	if lock.Token != token {
		e.mu.Unlock()
		return ErrNotHolder
	}
	holder := lock.Holder
	e.live.Lock = nil
	e.live.Available = e.live.Workload < e.live.MaxWorkload
	r.persist(professionalID, e.live)
	e.mu.Unlock()

	r.publish(Event{Type: EventReleased, ProfessionalID: professionalID, ClientID: holder, Reason: "released"})
	return nil
}

// ReleaseAllFor releases every lock held by a client, used on ungraceful
// disconnect. Zero matches is fine. Returns the number released.
func (r *Registry) ReleaseAllFor(clientID string) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	released := 0
	for _, id := range ids {
		e, ok := r.get(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.live.Lock != nil && e.live.Lock.Holder == clientID {
			e.live.Lock = nil
			e.live.Available = e.live.Workload < e.live.MaxWorkload
			r.persist(id, e.live)
			released++
			e.mu.Unlock()
			r.publish(Event{Type: EventReleased, ProfessionalID: id, ClientID: clientID, Reason: "disconnect"})
			continue
		}
		e.mu.Unlock()
	}
	if released > 0 {
		r.logger.Info("released locks for disconnected client",
			zap.String("client", clientID), zap.Int("count", released))
	}
	return released
}

// OccupySlot converts a reservation into a workload slot: the session itself
// now prevents overbooking, so the negotiation lock is dropped.
func (r *Registry) OccupySlot(professionalID, token string) error {
	e, ok := r.get(professionalID)
	if !ok {
		return ErrUnknownProfessional
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	lock := e.live.Lock
	if lock == nil || lock.Token != token {
		return ErrNotHolder
	}
	e.live.Lock = nil
	e.live.Workload++
	e.live.Available = e.live.Workload < e.live.MaxWorkload
	r.persist(professionalID, e.live)
	return nil
}

// VacateSlot frees a workload slot when a session reaches a terminal state.
func (r *Registry) VacateSlot(professionalID string) {
	e, ok := r.get(professionalID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live.Workload > 0 {
		e.live.Workload--
	}
	if e.live.Lock == nil {
		e.live.Available = e.live.Workload < e.live.MaxWorkload
	}
	r.persist(professionalID, e.live)
}

// SetOnline updates presence from a heartbeat.
func (r *Registry) SetOnline(professionalID string, online bool) error {
	e, ok := r.get(professionalID)
	if !ok {
		return ErrUnknownProfessional
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live.Online = online
	e.live.LastActive = r.now()
	r.persist(professionalID, e.live)
	return nil
}

// SetAvailable flips the availability flag. It refuses to mark a professional
// available while a live lock is held, preserving the lock/available
// invariant.
func (r *Registry) SetAvailable(professionalID string, available bool) error {
	e, ok := r.get(professionalID)
	if !ok {
		return ErrUnknownProfessional
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if available && e.live.Lock != nil && !e.live.Lock.Expired(r.now()) {
		return ErrNotEligible
	}
	e.live.Available = available
	e.live.LastActive = r.now()
	r.persist(professionalID, e.live)
	return nil
}

// RepairInconsistencies forces the lock/available invariant on every entry.
// In correct operation it never finds anything; it exists as a defensive
// self-check and logs a warning for each correction. Returns the number of
// corrections made.
func (r *Registry) RepairInconsistencies() int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	corrected := 0
	now := r.now()
	for _, id := range ids {
		e, ok := r.get(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		switch {
		case e.live.Lock != nil && !e.live.Lock.Expired(now) && e.live.Available:
			e.live.Available = false
			r.persist(id, e.live)
			corrected++
			r.logger.Warn("repaired inconsistent state: locked but available",
				zap.String("professional", id),
				zap.String("holder", e.live.Lock.Holder))
		case e.live.Lock != nil && e.live.Lock.Expired(now):
			// Stale lock left installed past expiry: clear it and restore
			// availability, the same correction the expiry sweep applies.
			holder := e.live.Lock.Holder
			e.live.Lock = nil
			e.live.Available = e.live.Workload < e.live.MaxWorkload
			r.persist(id, e.live)
			corrected++
			r.logger.Warn("repaired inconsistent state: expired lock still installed",
				zap.String("professional", id),
				zap.String("holder", holder))
		}
		e.mu.Unlock()
	}
	return corrected
}

func (r *Registry) persist(id string, live models.LiveState) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveLiveState(id, live); err != nil {
		r.logger.Warn("failed to persist live state",
			zap.String("professional", id), zap.Error(err))
	}
}
