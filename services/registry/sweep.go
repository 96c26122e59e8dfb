package registry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartSweeper runs the periodic lock expiry sweep as a background task,
// independent of request handling. Each pass eagerly releases expired locks
// (emitting release events) and then runs the invariant self-check.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweepExpired()
				r.RepairInconsistencies()
			}
		}
	}()
}

// sweepExpired releases every lock past its expiry and notifies subscribers.
func (r *Registry) sweepExpired() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	now := r.now()
	for _, id := range ids {
		e, ok := r.get(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.live.Lock == nil || !e.live.Lock.Expired(now) {
			e.mu.Unlock()
			continue
		}
		holder := e.live.Lock.Holder
		e.live.Lock = nil
		e.live.Available = e.live.Workload < e.live.MaxWorkload
		r.persist(id, e.live)
		e.mu.Unlock()

		r.logger.Info("released expired lock",
			zap.String("professional", id), zap.String("holder", holder))
		r.publish(Event{Type: EventReleased, ProfessionalID: id, ClientID: holder, Reason: "expired"})
	}
}
