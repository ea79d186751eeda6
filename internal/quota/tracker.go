package quota

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

const dateLayout = "2006-01-02"

// Limits are the per-user submission ceilings.
type Limits struct {
	MaxPerDay  int
	MaxPerHour int
}

// Locker guards a key across processes. The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Usage is a point-in-time view of one user's counters.
type Usage struct {
	Date           string
	Daily          int
	Hourly         int
	Pending        int
	LastSubmission time.Time
}

// Tracker enforces the daily and hourly ceilings for every user. Counters
// live in memory and are mirrored to the quota store; when the store fails
// the tracker logs once and keeps going in memory for the rest of the process.
type Tracker struct {
	store    model.QuotaStore
	limits   Limits
	locker   Locker
	loc      *time.Location
	logger   *slog.Logger
	degraded atomic.Bool

	mu    sync.Mutex
	users map[string]*userState
}

type userState struct {
	mu      sync.Mutex
	loaded  bool
	date    string
	daily   int
	hourly  int
	pending int
	last    time.Time
	claims  map[string]struct{} // job keys being submitted right now
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocker adds a cross-process lock held for the lifetime of a reservation.
func WithLocker(l Locker) Option {
	return func(t *Tracker) { t.locker = l }
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// NewTracker creates a tracker backed by store.
func NewTracker(store model.QuotaStore, limits Limits, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		limits: limits,
		loc:    time.Local,
		logger: logger,
		users:  make(map[string]*userState),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Limits returns the configured ceilings.
func (t *Tracker) Limits() Limits { return t.limits }

// Degraded reports whether the tracker has lost its durable store.
func (t *Tracker) Degraded() bool { return t.degraded.Load() }

// DayStart returns midnight of now's calendar day in the tracker's zone.
func (t *Tracker) DayStart(now time.Time) time.Time {
	n := now.In(t.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, t.loc)
}

// ResetIfNewDay makes sure a quota row exists for now's date and, if the
// in-memory counters belong to another day, reloads them from the store.
// Counts already persisted for today are kept, never zeroed.
func (t *Tracker) ResetIfNewDay(ctx context.Context, userID string, now time.Time) {
	st := t.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	t.syncDay(ctx, userID, st, now)
}

// CanSubmit reports whether one more submission is allowed at now.
func (t *Tracker) CanSubmit(ctx context.Context, userID string, now time.Time) bool {
	st := t.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	t.syncDay(ctx, userID, st, now)
	return t.allowLocked(st, now)
}

// RecordSubmission counts a submission made at now and persists it.
func (t *Tracker) RecordSubmission(ctx context.Context, userID string, now time.Time) {
	st := t.state(userID)
	st.mu.Lock()
	t.syncDay(ctx, userID, st, now)
	st.daily++
	st.hourly++
	st.last = now
	date := st.date
	st.mu.Unlock()

	t.persist(ctx, userID, date, now)
}

// Usage returns the current counters for userID.
func (t *Tracker) Usage(userID string) Usage {
	st := t.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return Usage{
		Date:           st.date,
		Daily:          st.daily,
		Hourly:         st.hourly,
		Pending:        st.pending,
		LastSubmission: st.last,
	}
}

// DailyCount returns the in-memory count for now's calendar day, or zero
// when the counters were last loaded for another day.
func (t *Tracker) DailyCount(userID string, now time.Time) int {
	u := t.Usage(userID)
	if u.Date != now.In(t.loc).Format(dateLayout) {
		return 0
	}
	return u.Daily
}

func (t *Tracker) state(userID string) *userState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[userID]
	if !ok {
		st = &userState{}
		t.users[userID] = st
	}
	return st
}

// syncDay rolls the counters over when now falls on a different calendar
// day than the loaded state. Caller holds st.mu.
func (t *Tracker) syncDay(ctx context.Context, userID string, st *userState, now time.Time) {
	date := now.In(t.loc).Format(dateLayout)
	if st.loaded && st.date == date {
		return
	}

	st.loaded = true
	st.date = date
	st.daily = 0
	st.hourly = 0
	st.last = time.Time{}

	if t.degraded.Load() {
		return
	}

	rec, err := t.store.EnsureQuota(ctx, userID, date)
	if err != nil {
		t.markDegraded(userID, err)
		return
	}
	st.daily = rec.Count
	if rec.LastApplication != nil {
		st.last = *rec.LastApplication
	}

	// After a restart the hourly window is rebuilt from history.
	if !st.last.IsZero() && now.Sub(st.last) < time.Hour {
		n, err := t.store.CountApplicationsSince(ctx, userID, now.Add(-time.Hour))
		if err != nil {
			t.markDegraded(userID, err)
			return
		}
		st.hourly = n
	}
}

// allowLocked applies both ceilings, counting outstanding reservations.
// The hourly counter resets only once it has hit the ceiling and an hour
// has passed since the last submission. Caller holds st.mu.
func (t *Tracker) allowLocked(st *userState, now time.Time) bool {
	if st.daily+st.pending >= t.limits.MaxPerDay {
		return false
	}
	if st.hourly >= t.limits.MaxPerHour && !st.last.IsZero() && now.Sub(st.last) >= time.Hour {
		st.hourly = 0
	}
	return st.hourly+st.pending < t.limits.MaxPerHour
}

func (t *Tracker) persist(ctx context.Context, userID, date string, now time.Time) {
	if t.degraded.Load() {
		return
	}
	if err := t.store.IncrementQuota(ctx, userID, date, now); err != nil {
		t.markDegraded(userID, err)
	}
}

func (t *Tracker) markDegraded(userID string, err error) {
	if t.degraded.CompareAndSwap(false, true) {
		t.logger.Error("quota store unavailable, continuing in memory only",
			"user_id", userID,
			"error", err,
		)
	}
}
