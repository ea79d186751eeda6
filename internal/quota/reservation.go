package quota

import (
	"context"
	"sync"
	"time"
)

// Reservation holds one submission slot between the quota check and the
// outcome of the submission. Exactly one of Commit or Release takes effect.
type Reservation struct {
	t      *Tracker
	userID string
	unlock func()
	once   sync.Once
}

// Reserve atomically checks both ceilings and, if a slot is free, holds it
// so concurrent cycles for the same user cannot overshoot. The slot must be
// finished with Commit or Release.
func (t *Tracker) Reserve(ctx context.Context, userID string, now time.Time) (*Reservation, bool) {
	unlock := func() {}
	if t.locker != nil {
		u, err := t.locker.Lock(ctx, "autoapply:quota:"+userID)
		if err != nil {
			t.logger.Warn("quota lock unavailable, using process-local guard",
				"user_id", userID,
				"error", err,
			)
		} else {
			unlock = u
		}
	}

	st := t.state(userID)
	st.mu.Lock()
	t.syncDay(ctx, userID, st, now)
	if t.locker != nil {
		t.refreshLocked(ctx, userID, st)
	}
	if !t.allowLocked(st, now) {
		st.mu.Unlock()
		unlock()
		return nil, false
	}
	st.pending++
	st.mu.Unlock()

	return &Reservation{t: t, userID: userID, unlock: unlock}, true
}

// refreshLocked picks up submissions another process persisted for the
// current day. Caller holds st.mu and the cross-process lock.
func (t *Tracker) refreshLocked(ctx context.Context, userID string, st *userState) {
	if t.degraded.Load() {
		return
	}
	rec, err := t.store.EnsureQuota(ctx, userID, st.date)
	if err != nil {
		t.markDegraded(userID, err)
		return
	}
	if rec.Count > st.daily {
		st.hourly += rec.Count - st.daily
		st.daily = rec.Count
	}
	if rec.LastApplication != nil && rec.LastApplication.After(st.last) {
		st.last = *rec.LastApplication
	}
}

// Commit turns the held slot into a recorded submission at now.
func (r *Reservation) Commit(ctx context.Context, now time.Time) {
	r.once.Do(func() {
		t := r.t
		st := t.state(r.userID)
		st.mu.Lock()
		st.pending--
		t.syncDay(ctx, r.userID, st, now)
		st.daily++
		st.hourly++
		st.last = now
		date := st.date
		st.mu.Unlock()

		t.persist(ctx, r.userID, date, now)
		r.unlock()
	})
}

// Release gives the slot back without counting a submission.
func (r *Reservation) Release() {
	r.once.Do(func() {
		st := r.t.state(r.userID)
		st.mu.Lock()
		st.pending--
		st.mu.Unlock()
		r.unlock()
	})
}
