package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeQuotaStore is an in-memory QuotaStore with an error switch.
type fakeQuotaStore struct {
	mu         sync.Mutex
	rows       map[string]*model.QuotaRecord
	recent     int
	err        error
	increments int
}

func newFakeQuotaStore() *fakeQuotaStore {
	return &fakeQuotaStore{rows: make(map[string]*model.QuotaRecord)}
}

func (s *fakeQuotaStore) EnsureQuota(_ context.Context, userID, date string) (model.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.QuotaRecord{}, s.err
	}
	k := userID + "|" + date
	rec, ok := s.rows[k]
	if !ok {
		rec = &model.QuotaRecord{UserID: userID, Date: date}
		s.rows[k] = rec
	}
	return *rec, nil
}

func (s *fakeQuotaStore) IncrementQuota(_ context.Context, userID, date string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	k := userID + "|" + date
	rec, ok := s.rows[k]
	if !ok {
		rec = &model.QuotaRecord{UserID: userID, Date: date}
		s.rows[k] = rec
	}
	rec.Count++
	rec.LastApplication = &at
	s.increments++
	return nil
}

func (s *fakeQuotaStore) CountApplicationsSince(context.Context, string, time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recent, s.err
}

func (s *fakeQuotaStore) set(userID, date string, count int, last time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[userID+"|"+date] = &model.QuotaRecord{UserID: userID, Date: date, Count: count, LastApplication: &last}
}

var day1 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestTracker(store model.QuotaStore, limits Limits, opts ...Option) *Tracker {
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	return NewTracker(store, limits, testLogger, opts...)
}

func TestDailyCeiling(t *testing.T) {
	tr := newTestTracker(newFakeQuotaStore(), Limits{MaxPerDay: 3, MaxPerHour: 10})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		now := day1.Add(time.Duration(i) * time.Minute)
		if !tr.CanSubmit(ctx, "u1", now) {
			t.Fatalf("submission %d should be allowed", i)
		}
		tr.RecordSubmission(ctx, "u1", now)
	}

	if tr.CanSubmit(ctx, "u1", day1.Add(5*time.Hour)) {
		t.Error("expected daily ceiling to block")
	}
	if !tr.CanSubmit(ctx, "u1", day1.Add(24*time.Hour)) {
		t.Error("expected next day to be allowed")
	}
	if u := tr.Usage("u1"); u.Daily != 0 || u.Date != "2025-03-11" {
		t.Errorf("expected rolled-over counters, got %+v", u)
	}
}

func TestHourlyCeiling_ResetsAfterAnHour(t *testing.T) {
	tr := newTestTracker(newFakeQuotaStore(), Limits{MaxPerDay: 100, MaxPerHour: 2})
	ctx := context.Background()

	tr.RecordSubmission(ctx, "u1", day1)
	last := day1.Add(time.Minute)
	tr.RecordSubmission(ctx, "u1", last)

	if tr.CanSubmit(ctx, "u1", day1.Add(30*time.Minute)) {
		t.Error("expected hourly ceiling to block")
	}
	if tr.CanSubmit(ctx, "u1", last.Add(59*time.Minute)) {
		t.Error("expected block just under an hour after last submission")
	}
	if !tr.CanSubmit(ctx, "u1", last.Add(time.Hour)) {
		t.Error("expected reset one hour after last submission")
	}
	if u := tr.Usage("u1"); u.Hourly != 0 {
		t.Errorf("expected hourly counter reset, got %d", u.Hourly)
	}
}

func TestHourlyCounter_OnlyResetsAtCeiling(t *testing.T) {
	tr := newTestTracker(newFakeQuotaStore(), Limits{MaxPerDay: 100, MaxPerHour: 3})
	ctx := context.Background()

	tr.RecordSubmission(ctx, "u1", day1)
	tr.RecordSubmission(ctx, "u1", day1.Add(time.Minute))

	later := day1.Add(2 * time.Hour)
	if !tr.CanSubmit(ctx, "u1", later) {
		t.Fatal("expected allowed below ceiling")
	}
	if u := tr.Usage("u1"); u.Hourly != 2 {
		t.Errorf("expected hourly counter untouched below ceiling, got %d", u.Hourly)
	}

	tr.RecordSubmission(ctx, "u1", later)
	if tr.CanSubmit(ctx, "u1", later.Add(time.Minute)) {
		t.Error("expected ceiling reached after third submission")
	}
}

func TestResetIfNewDay_KeepsPersistedCount(t *testing.T) {
	store := newFakeQuotaStore()
	store.set("u1", "2025-03-10", 5, day1.Add(-3*time.Hour))
	tr := newTestTracker(store, Limits{MaxPerDay: 10, MaxPerHour: 10})

	tr.ResetIfNewDay(context.Background(), "u1", day1)

	if u := tr.Usage("u1"); u.Daily != 5 {
		t.Errorf("expected persisted count 5, got %d", u.Daily)
	}
	rec, _ := store.EnsureQuota(context.Background(), "u1", "2025-03-10")
	if rec.Count != 5 {
		t.Errorf("store count overwritten: %d", rec.Count)
	}
}

func TestResetIfNewDay_RebuildsHourlyWindow(t *testing.T) {
	store := newFakeQuotaStore()
	store.set("u1", "2025-03-10", 4, day1.Add(-10*time.Minute))
	store.recent = 4
	tr := newTestTracker(store, Limits{MaxPerDay: 100, MaxPerHour: 4})

	if tr.CanSubmit(context.Background(), "u1", day1) {
		t.Error("expected restored hourly counter to block")
	}
}

func TestResetIfNewDay_CreatesRow(t *testing.T) {
	store := newFakeQuotaStore()
	tr := newTestTracker(store, Limits{MaxPerDay: 10, MaxPerHour: 10})

	tr.ResetIfNewDay(context.Background(), "u1", day1)

	if _, ok := store.rows["u1|2025-03-10"]; !ok {
		t.Error("expected quota row for today")
	}
}

func TestRecordSubmission_Persists(t *testing.T) {
	store := newFakeQuotaStore()
	tr := newTestTracker(store, Limits{MaxPerDay: 10, MaxPerHour: 10})

	tr.RecordSubmission(context.Background(), "u1", day1)

	rec := store.rows["u1|2025-03-10"]
	if rec == nil || rec.Count != 1 || !rec.LastApplication.Equal(day1) {
		t.Errorf("unexpected row: %+v", rec)
	}
}

func TestStoreFailure_DegradesToMemory(t *testing.T) {
	store := newFakeQuotaStore()
	store.err = errors.New("disk I/O error")
	tr := newTestTracker(store, Limits{MaxPerDay: 2, MaxPerHour: 10})
	ctx := context.Background()

	if !tr.CanSubmit(ctx, "u1", day1) {
		t.Fatal("expected allowed while degraded")
	}
	if !tr.Degraded() {
		t.Error("expected degraded flag")
	}
	tr.RecordSubmission(ctx, "u1", day1)
	tr.RecordSubmission(ctx, "u1", day1)
	if tr.CanSubmit(ctx, "u1", day1) {
		t.Error("in-memory ceiling should still apply")
	}
}

func TestReserve_ConcurrentCallersNeverOvershoot(t *testing.T) {
	store := newFakeQuotaStore()
	tr := newTestTracker(store, Limits{MaxPerDay: 100, MaxPerHour: 5})
	ctx := context.Background()

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, ok := tr.Reserve(ctx, "u1", day1)
			if !ok {
				return
			}
			granted.Add(1)
			r.Commit(ctx, day1)
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 5 {
		t.Errorf("expected exactly 5 reservations, got %d", got)
	}
	if store.increments != 5 {
		t.Errorf("expected 5 persisted increments, got %d", store.increments)
	}
}

func TestReserve_ReleaseFreesSlot(t *testing.T) {
	tr := newTestTracker(newFakeQuotaStore(), Limits{MaxPerDay: 10, MaxPerHour: 1})
	ctx := context.Background()

	r, ok := tr.Reserve(ctx, "u1", day1)
	if !ok {
		t.Fatal("first reservation should succeed")
	}
	if _, ok := tr.Reserve(ctx, "u1", day1); ok {
		t.Fatal("second reservation should be refused while first is pending")
	}

	r.Release()
	r.Release() // second call is a no-op

	if u := tr.Usage("u1"); u.Pending != 0 || u.Hourly != 0 {
		t.Errorf("unexpected usage after release: %+v", u)
	}
	if _, ok := tr.Reserve(ctx, "u1", day1); !ok {
		t.Error("slot should be free after release")
	}
}

// fakeLocker counts lock and unlock calls.
type fakeLocker struct {
	locks, unlocks atomic.Int32
}

func (l *fakeLocker) Lock(context.Context, string) (func(), error) {
	l.locks.Add(1)
	return func() { l.unlocks.Add(1) }, nil
}

func TestReserve_WithLockerSeesOtherProcesses(t *testing.T) {
	store := newFakeQuotaStore()
	locker := &fakeLocker{}
	tr := newTestTracker(store, Limits{MaxPerDay: 3, MaxPerHour: 10}, WithLocker(locker))
	ctx := context.Background()

	tr.ResetIfNewDay(ctx, "u1", day1)
	// another process submitted three times meanwhile
	store.set("u1", "2025-03-10", 3, day1)

	if _, ok := tr.Reserve(ctx, "u1", day1.Add(time.Minute)); ok {
		t.Error("expected refresh under lock to see the external submissions")
	}
	if locker.locks.Load() != 1 || locker.unlocks.Load() != 1 {
		t.Errorf("expected lock released on refusal, locks=%d unlocks=%d", locker.locks.Load(), locker.unlocks.Load())
	}
}

func TestReserve_CommitReleasesLock(t *testing.T) {
	locker := &fakeLocker{}
	tr := newTestTracker(newFakeQuotaStore(), Limits{MaxPerDay: 3, MaxPerHour: 10}, WithLocker(locker))
	ctx := context.Background()

	r, ok := tr.Reserve(ctx, "u1", day1)
	if !ok {
		t.Fatal("expected reservation")
	}
	if locker.unlocks.Load() != 0 {
		t.Error("lock should be held until commit")
	}
	r.Commit(ctx, day1)
	if locker.unlocks.Load() != 1 {
		t.Error("expected unlock on commit")
	}
}

func TestDailyCount_IgnoresStaleDay(t *testing.T) {
	tr := newTestTracker(newFakeQuotaStore(), Limits{MaxPerDay: 10, MaxPerHour: 10})
	late := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)

	tr.RecordSubmission(context.Background(), "u1", late)
	if got := tr.DailyCount("u1", late); got != 1 {
		t.Errorf("same day count = %d, want 1", got)
	}
	if got := tr.DailyCount("u1", late.Add(4*time.Hour)); got != 0 {
		t.Errorf("next day count = %d, want 0", got)
	}
}

func TestClaim_OneHolderPerJob(t *testing.T) {
	tr := newTestTracker(newFakeQuotaStore(), Limits{MaxPerDay: 10, MaxPerHour: 10})

	release, ok := tr.Claim("u1", "go engineer_acme")
	if !ok {
		t.Fatal("first claim should succeed")
	}
	if _, ok := tr.Claim("u1", "go engineer_acme"); ok {
		t.Fatal("second claim on the same job should be refused")
	}
	if r, ok := tr.Claim("u2", "go engineer_acme"); !ok {
		t.Error("claims are per user")
	} else {
		r()
	}
	if r, ok := tr.Claim("u1", "sre_acme"); !ok {
		t.Error("other jobs are unaffected")
	} else {
		r()
	}

	release()
	release() // second call is a no-op

	if _, ok := tr.Claim("u1", "go engineer_acme"); !ok {
		t.Error("claim should be free after release")
	}
}
