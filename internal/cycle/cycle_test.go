package cycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/amishk599/autoapply/internal/dedupe"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/quota"
	"github.com/amishk599/autoapply/internal/ranker"
)

// --- Fakes ---

// staticSource returns canned postings for every query.
type staticSource struct {
	name     string
	postings []model.JobPosting
	err      error
	calls    atomic.Int32
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(context.Context, string, string, int) ([]model.JobPosting, error) {
	s.calls.Add(1)
	return s.postings, s.err
}

// titleScorer scores jobs by title lookup.
type titleScorer map[string]float64

func (g titleScorer) Score(_ context.Context, _ model.UserProfile, job model.JobPosting) (float64, error) {
	s, ok := g[job.Title]
	if !ok {
		return 0, errors.New("unknown title")
	}
	return s, nil
}

func (g titleScorer) WriteCoverLetter(_ context.Context, _ model.UserProfile, job model.JobPosting) (string, error) {
	return "Letter for " + job.Title, nil
}

// recordingChannel records submitted job titles and can fail chosen titles.
type recordingChannel struct {
	mu     sync.Mutex
	titles []string
	fail   map[string]bool
	panics bool
	hold   time.Duration
}

func (c *recordingChannel) Submit(_ context.Context, job model.JobPosting, _ model.ApplicationPayload) error {
	if c.panics {
		panic("boom")
	}
	if c.hold > 0 {
		time.Sleep(c.hold)
	}
	if c.fail[job.Title] {
		return errors.New("form rejected")
	}
	c.mu.Lock()
	c.titles = append(c.titles, job.Title)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func (c *recordingChannel) submitted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.titles...)
}

// memStore keeps applications and quota rows in memory.
type memStore struct {
	mu      sync.Mutex
	apps    []model.Application
	quota   map[string]int
	applied map[string]bool
	hasErr  error
}

func newMemStore() *memStore {
	return &memStore{quota: make(map[string]int), applied: make(map[string]bool)}
}

func (s *memStore) SaveApplication(_ context.Context, app *model.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = int64(len(s.apps) + 1)
	s.apps = append(s.apps, *app)
	s.applied[app.UserID+"|"+app.JobKey] = true
	return nil
}

func (s *memStore) HasApplied(_ context.Context, userID, jobKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied[userID+"|"+jobKey], s.hasErr
}

func (s *memStore) ListApplications(context.Context, string, int) ([]model.Application, error) {
	return nil, nil
}

func (s *memStore) UpdateApplicationStatus(context.Context, int64, model.ApplicationStatus, time.Time) error {
	return nil
}

func (s *memStore) Stats(context.Context, string, time.Time) (model.UserStats, error) {
	return model.UserStats{}, nil
}

func (s *memStore) EnsureQuota(_ context.Context, userID, date string) (model.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.QuotaRecord{UserID: userID, Date: date, Count: s.quota[userID+"|"+date]}, nil
}

func (s *memStore) IncrementQuota(_ context.Context, userID, date string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota[userID+"|"+date]++
	return nil
}

func (s *memStore) CountApplicationsSince(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func (s *memStore) saved() []model.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Application(nil), s.apps...)
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func job(title, company string, src model.Source) model.JobPosting {
	return model.JobPosting{Title: title, Company: company, Source: src, URL: "https://example.com/" + title}
}

func testReg() model.UserRegistration {
	return model.UserRegistration{
		UserID:        "u1",
		SearchQueries: []string{"backend"},
		Profile: model.UserProfile{
			ContactFields: model.ContactFields{Name: "Ada", Email: "ada@example.com"},
			Skills:        []string{"Python", "SQL"},
		},
	}
}

type harness struct {
	store   *memStore
	channel *recordingChannel
	tracker *quota.Tracker
	sleeps  []time.Duration
}

func newHarness(limits quota.Limits) *harness {
	st := newMemStore()
	return &harness{
		store:   st,
		channel: &recordingChannel{},
		tracker: quota.NewTracker(st, limits, discardLogger(), quota.WithLocation(time.UTC)),
	}
}

func (h *harness) deps(gen model.TextGenerator, sources ...model.JobSource) Deps {
	return Deps{
		Sources: sources,
		Dedupe:  dedupe.New(true),
		Ranker:  ranker.New(gen, discardLogger()),
		Quota:   h.tracker,
		Store:   h.store,
		Channel: h.channel,
		Logger:  discardLogger(),
		Clock:   func() time.Time { return fixedNow },
		Sleep:   func(d time.Duration) { h.sleeps = append(h.sleeps, d) },
		Rand:    func() float64 { return 0.5 },
	}
}

func testConfig() Config {
	return Config{
		MinMatchScore:  0.7,
		DelayMin:       10 * time.Second,
		DelayMax:       20 * time.Second,
		LimitPerSource: 10,
		BacklogSize:    5,
	}
}

// --- Tests ---

func TestRun_SameJobFromTwoSourcesIsOneEntry(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	a := &staticSource{name: "adzuna", postings: []model.JobPosting{job("Backend Dev", "Acme", model.SourceAdzuna)}}
	b := &staticSource{name: "remoteok", postings: []model.JobPosting{job("Backend Dev", "Acme", model.SourceRemoteOK)}}

	sum := New(testReg(), ModeApply, testConfig(), h.deps(titleScorer{"Backend Dev": 0.9}, a, b)).Run(context.Background())

	if sum.Discovered != 2 || sum.Unique != 1 {
		t.Errorf("discovered=%d unique=%d, want 2 and 1", sum.Discovered, sum.Unique)
	}
	if sum.Submitted != 1 {
		t.Errorf("submitted = %d, want 1", sum.Submitted)
	}
	apps := h.store.saved()
	if len(apps) != 1 || apps[0].Source != model.SourceAdzuna {
		t.Errorf("expected first-seen posting persisted, got %+v", apps)
	}
}

func TestRun_SubmitsBestFirstAboveThreshold(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{
		job("Nine", "A", model.SourceAdzuna),
		job("Five", "B", model.SourceAdzuna),
		job("Eight", "C", model.SourceAdzuna),
	}}
	gen := titleScorer{"Nine": 0.9, "Five": 0.5, "Eight": 0.8}

	sum := New(testReg(), ModeApply, testConfig(), h.deps(gen, src)).Run(context.Background())

	if diff := cmp.Diff([]string{"Nine", "Eight"}, h.channel.submitted()); diff != "" {
		t.Errorf("submission order mismatch (-want +got):\n%s", diff)
	}
	if sum.Scored != 3 || sum.Eligible != 2 || sum.Submitted != 2 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.State != StateCompleted || sum.Reason != ReasonExhausted {
		t.Errorf("state=%s reason=%q", sum.State, sum.Reason)
	}
	// One pause between the two submissions, midway through the range.
	if diff := cmp.Diff([]time.Duration{15 * time.Second}, h.sleeps); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DailyCeilingStopsBeforeThirdJob(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 2, MaxPerHour: 10})
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{
		job("One", "A", model.SourceAdzuna),
		job("Two", "B", model.SourceAdzuna),
		job("Three", "C", model.SourceAdzuna),
	}}
	gen := titleScorer{"One": 0.95, "Two": 0.9, "Three": 0.85}

	sum := New(testReg(), ModeApply, testConfig(), h.deps(gen, src)).Run(context.Background())

	if sum.Submitted != 2 {
		t.Fatalf("submitted = %d, want 2", sum.Submitted)
	}
	if sum.State != StateCompleted || sum.Reason != ReasonQuota {
		t.Errorf("state=%s reason=%q, want completed/quota", sum.State, sum.Reason)
	}
	if diff := cmp.Diff([]string{"One", "Two"}, h.channel.submitted()); diff != "" {
		t.Errorf("third job should not be attempted (-want +got):\n%s", diff)
	}
	if got := h.tracker.Usage("u1").Daily; got != 2 {
		t.Errorf("daily usage = %d, want 2", got)
	}
}

func TestRun_SubmissionFailureSkipsJob(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	h.channel.fail = map[string]bool{"Broken": true}
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{
		job("Broken", "A", model.SourceAdzuna),
		job("Fine", "B", model.SourceAdzuna),
	}}
	gen := titleScorer{"Broken": 0.9, "Fine": 0.8}

	sum := New(testReg(), ModeApply, testConfig(), h.deps(gen, src)).Run(context.Background())

	if sum.Submitted != 1 || sum.Skipped != 1 {
		t.Errorf("submitted=%d skipped=%d, want 1 and 1", sum.Submitted, sum.Skipped)
	}
	apps := h.store.saved()
	if len(apps) != 1 || apps[0].JobTitle != "Fine" {
		t.Errorf("only the accepted job should be persisted, got %+v", apps)
	}
	if got := h.tracker.Usage("u1"); got.Daily != 1 || got.Pending != 0 {
		t.Errorf("usage = %+v, want daily 1 and nothing pending", got)
	}
}

func TestRun_SourceFailureDoesNotAbort(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	bad := &staticSource{name: "lever:acme", err: errors.New("timeout")}
	good := &staticSource{name: "adzuna", postings: []model.JobPosting{job("Go Dev", "A", model.SourceAdzuna)}}

	reg := testReg()
	reg.SearchQueries = []string{"go", "python"}
	sum := New(reg, ModeApply, testConfig(), h.deps(titleScorer{"Go Dev": 0.9}, bad, good)).Run(context.Background())

	if sum.SourceErrors != 2 {
		t.Errorf("source errors = %d, want 2 (one per query)", sum.SourceErrors)
	}
	if sum.State != StateCompleted || sum.Submitted != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestRun_AlreadyAppliedIsSkippedWithoutQuota(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	h.store.applied["u1|"+dedupe.New(true).Key(job("Old", "A", ""))] = true
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{
		job("Old", "A", model.SourceAdzuna),
		job("New", "B", model.SourceAdzuna),
	}}

	sum := New(testReg(), ModeApply, testConfig(), h.deps(titleScorer{"Old": 0.9, "New": 0.8}, src)).Run(context.Background())

	if sum.AlreadyApplied != 1 || sum.Submitted != 1 || sum.Skipped != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if got := h.tracker.Usage("u1"); got.Daily != 1 || got.Pending != 0 {
		t.Errorf("usage = %+v, want daily 1", got)
	}
}

func TestRun_DiscoverModeBuildsBacklogWithoutSubmitting(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{
		job("A", "X", model.SourceAdzuna),
		job("B", "X", model.SourceAdzuna),
		job("C", "X", model.SourceAdzuna),
	}}
	cfg := testConfig()
	cfg.BacklogSize = 2

	sum := New(testReg(), ModeDiscover, cfg, h.deps(titleScorer{"A": 0.75, "B": 0.95, "C": 0.85}, src)).Run(context.Background())

	if len(h.channel.submitted()) != 0 || sum.Submitted != 0 {
		t.Fatal("discover mode must not submit")
	}
	var titles []string
	for _, sj := range sum.Backlog {
		titles = append(titles, sj.Job.Title)
	}
	if diff := cmp.Diff([]string{"B", "C"}, titles); diff != "" {
		t.Errorf("backlog mismatch (-want +got):\n%s", diff)
	}
	if sum.Reason != ReasonDiscover || sum.State != StateCompleted {
		t.Errorf("state=%s reason=%q", sum.State, sum.Reason)
	}
	if got := h.tracker.Usage("u1").Daily; got != 0 {
		t.Errorf("discover mode consumed quota: %d", got)
	}
}

func TestRun_ConcurrentCyclesShareHourlyCeiling(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 100, MaxPerHour: 3})
	h.channel.hold = 5 * time.Millisecond

	var postings []model.JobPosting
	gen := titleScorer{}
	for _, title := range []string{"J1", "J2", "J3"} {
		postings = append(postings, job(title, "Acme", model.SourceAdzuna))
		gen[title] = 0.9
	}

	// Separate stores hide each cycle's saved rows from the other, so only
	// the shared tracker bounds the total.
	run := func() Summary {
		d := h.deps(gen, &staticSource{name: "adzuna", postings: postings})
		d.Store = newMemStore()
		d.Sleep = func(time.Duration) {}
		return New(testReg(), ModeApply, testConfig(), d).Run(context.Background())
	}

	var wg sync.WaitGroup
	results := make([]Summary, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run()
		}()
	}
	wg.Wait()

	total := results[0].Submitted + results[1].Submitted
	if total != 3 {
		t.Errorf("two concurrent cycles submitted %d in total, want exactly 3", total)
	}
	if got := len(h.channel.submitted()); got != 3 {
		t.Errorf("channel saw %d submissions, want 3", got)
	}
}

func TestRun_ConcurrentCyclesNeverSubmitSameJobTwice(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 100, MaxPerHour: 10})
	h.channel.hold = 20 * time.Millisecond

	var postings []model.JobPosting
	gen := titleScorer{}
	for _, title := range []string{"J1", "J2", "J3"} {
		postings = append(postings, job(title, "Acme", model.SourceAdzuna))
		gen[title] = 0.9
	}

	run := func() Summary {
		d := h.deps(gen, &staticSource{name: "adzuna", postings: postings})
		d.Sleep = func(time.Duration) {}
		return New(testReg(), ModeApply, testConfig(), d).Run(context.Background())
	}

	var wg sync.WaitGroup
	results := make([]Summary, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run()
		}()
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, title := range h.channel.submitted() {
		seen[title]++
	}
	for _, title := range []string{"J1", "J2", "J3"} {
		if seen[title] != 1 {
			t.Errorf("job %s submitted %d times, want 1", title, seen[title])
		}
	}

	keys := make(map[string]bool)
	for _, app := range h.store.saved() {
		if keys[app.JobKey] {
			t.Errorf("duplicate application row for %s", app.JobKey)
		}
		keys[app.JobKey] = true
	}

	submitted := results[0].Submitted + results[1].Submitted
	skipped := results[0].AlreadyApplied + results[1].AlreadyApplied
	if submitted != 3 || skipped != 3 {
		t.Errorf("submitted=%d already_applied=%d, want 3 and 3", submitted, skipped)
	}
}

func TestRun_CancelledContextAborts(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{job("A", "X", model.SourceAdzuna)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := New(testReg(), ModeApply, testConfig(), h.deps(titleScorer{"A": 0.9}, src)).Run(ctx)

	if sum.State != StateAborted || sum.Reason != ReasonCancelled {
		t.Errorf("state=%s reason=%q, want aborted/cancelled", sum.State, sum.Reason)
	}
	if len(h.channel.submitted()) != 0 {
		t.Error("aborted cycle submitted")
	}
}

func TestRun_PanicIsContained(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	h.channel.panics = true
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{job("A", "X", model.SourceAdzuna)}}

	c := New(testReg(), ModeApply, testConfig(), h.deps(titleScorer{"A": 0.9}, src))
	sum := c.Run(context.Background())

	if sum.State != StateAborted || sum.Reason != ReasonPanic {
		t.Errorf("state=%s reason=%q, want aborted after panic", sum.State, sum.Reason)
	}
	if c.State() != StateAborted {
		t.Errorf("State() = %s", c.State())
	}
	if got := h.tracker.Usage("u1").Pending; got != 0 {
		t.Errorf("reservation leaked: pending = %d", got)
	}
	if sum.ID == "" || sum.FinishedAt.IsZero() {
		t.Errorf("summary missing id or finish time: %+v", sum)
	}
}

func TestRun_HistoryLookupFailureStillSubmits(t *testing.T) {
	h := newHarness(quota.Limits{MaxPerDay: 10, MaxPerHour: 10})
	h.store.hasErr = errors.New("database is locked")
	src := &staticSource{name: "adzuna", postings: []model.JobPosting{job("A", "X", model.SourceAdzuna)}}

	sum := New(testReg(), ModeApply, testConfig(), h.deps(titleScorer{"A": 0.9}, src)).Run(context.Background())
	if sum.Submitted != 1 {
		t.Errorf("submitted = %d, want 1", sum.Submitted)
	}
}

func TestDelay_WithinBounds(t *testing.T) {
	c := New(testReg(), ModeApply, testConfig(), Deps{Logger: discardLogger(), Rand: func() float64 { return 0.999 }})
	if d := c.delay(); d < 10*time.Second || d > 20*time.Second {
		t.Errorf("delay %v outside [10s, 20s]", d)
	}

	cfg := testConfig()
	cfg.DelayMax = cfg.DelayMin
	c = New(testReg(), ModeApply, cfg, Deps{Logger: discardLogger()})
	if d := c.delay(); d != 10*time.Second {
		t.Errorf("fixed delay = %v, want 10s", d)
	}
}
