package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/amishk599/autoapply/internal/cycle"
	"github.com/amishk599/autoapply/internal/dedupe"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/quota"
	"github.com/amishk599/autoapply/internal/ranker"
	"github.com/amishk599/autoapply/internal/submit"
)

var (
	// ErrAlreadyRunning is returned by Start when the timer loop is active.
	ErrAlreadyRunning = errors.New("orchestrator already running")
	// ErrNotRunning is returned by Stop when the orchestrator was never started.
	ErrNotRunning = errors.New("orchestrator not running")
	// ErrStopping is returned when a cycle is requested during shutdown.
	ErrStopping = errors.New("orchestrator stopping")
)

// statusLogEvery is how often the timer loop logs a status line.
const statusLogEvery = time.Hour

// Config holds the schedule and per-cycle settings.
type Config struct {
	DailyTimes        []string // "HH:MM", local time
	DiscoveryInterval time.Duration
	Maintenance       string // standard cron expression
	PollInterval      time.Duration
	Cycle             cycle.Config
}

// Deps are shared by every cycle the orchestrator runs.
type Deps struct {
	Sources  []model.JobSource
	Dedupe   *dedupe.Deduplicator
	Ranker   *ranker.Ranker
	Quota    *quota.Tracker
	Store    model.ApplicationStore
	Channels submit.Factory
	Logger   *slog.Logger

	// Maintenance runs for each user in the weekly maintenance slot.
	// Defaults to logging the slot.
	Maintenance func(ctx context.Context, reg model.UserRegistration)

	Clock func() time.Time
	Sleep func(time.Duration)
}

// TriggerStatus is the next fire time of one schedule.
type TriggerStatus struct {
	Name string    `json:"name"`
	Kind Kind      `json:"kind"`
	Next time.Time `json:"next"`
}

// Status is a snapshot of the orchestrator.
type Status struct {
	Running      bool            `json:"running"`
	Users        int             `json:"users"`
	ActiveCycles int             `json:"active_cycles"`
	Triggers     []TriggerStatus `json:"triggers"`
	Degraded     bool            `json:"degraded"`
}

// entry is the orchestrator-owned state for one registered user.
type entry struct {
	reg      model.UserRegistration
	channel  model.SubmissionChannel
	backlog  []model.ScoredJob
	last     *cycle.Summary
	inflight sync.WaitGroup
}

// Orchestrator owns the user registry and drives cycles on a schedule.
// Cycles run in their own goroutines so one slow user never blocks the
// timer loop or another user.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	triggers []*trigger

	mu       sync.RWMutex
	users    map[string]*entry
	running  bool
	stopping bool
	active   int
	cancel   context.CancelFunc
	loopDone chan struct{}

	wg sync.WaitGroup // cycles and deferred channel closes
}

// New validates the schedule and returns an idle orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	triggers, err := buildTriggers(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Channels == nil {
		return nil, fmt.Errorf("submission channel factory required")
	}
	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		triggers: triggers,
		users:    make(map[string]*entry),
	}
	if o.deps.Maintenance == nil {
		o.deps.Maintenance = o.logMaintenance
	}
	now := deps.Clock()
	for _, t := range o.triggers {
		t.next = t.sched.Next(now)
	}
	return o, nil
}

// AddUser registers reg and opens its submission channel. Re-adding a
// registered user replaces the registration and keeps the open channel.
func (o *Orchestrator) AddUser(reg model.UserRegistration) error {
	if reg.UserID == "" {
		return fmt.Errorf("user id required")
	}
	reg.SearchQueries = slices.Clone(reg.SearchQueries)

	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.users[reg.UserID]; ok {
		e.reg = reg
		o.logger.Info("user updated", "user_id", reg.UserID, "queries", len(reg.SearchQueries))
		return nil
	}
	ch, err := o.deps.Channels(reg)
	if err != nil {
		return fmt.Errorf("open submission channel for %s: %w", reg.UserID, err)
	}
	o.users[reg.UserID] = &entry{reg: reg, channel: ch}
	o.logger.Info("user added", "user_id", reg.UserID, "queries", len(reg.SearchQueries))
	return nil
}

// RemoveUser unregisters a user. Removing an unknown user is a no-op.
// The user's channel is closed once its in-flight cycles finish.
func (o *Orchestrator) RemoveUser(userID string) {
	o.mu.Lock()
	e, ok := o.users[userID]
	if !ok || o.stopping {
		// A stopping orchestrator closes every channel itself.
		o.mu.Unlock()
		return
	}
	delete(o.users, userID)
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		e.inflight.Wait()
		if err := e.channel.Close(); err != nil {
			o.logger.Warn("closing submission channel failed", "user_id", userID, "error", err)
		}
	}()
	o.logger.Info("user removed", "user_id", userID)
}

// Users returns the registered user ids in sorted order.
func (o *Orchestrator) Users() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.users))
	for id := range o.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// UpdateSearchQueries replaces a user's search queries for future cycles.
func (o *Orchestrator) UpdateSearchQueries(userID string, queries []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", userID, model.ErrUserNotFound)
	}
	e.reg.SearchQueries = slices.Clone(queries)
	return nil
}

// Backlog returns the ranked jobs from the user's latest discovery sweep.
func (o *Orchestrator) Backlog(userID string) ([]model.ScoredJob, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.users[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", userID, model.ErrUserNotFound)
	}
	return slices.Clone(e.backlog), nil
}

// LastCycle returns the summary of the user's most recent finished cycle.
func (o *Orchestrator) LastCycle(userID string) (*cycle.Summary, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.users[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", userID, model.ErrUserNotFound)
	}
	return e.last, nil
}

// Start launches the timer loop. It returns immediately; the loop runs
// until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.loopDone = make(chan struct{})

	now := o.deps.Clock()
	for _, t := range o.triggers {
		t.next = t.sched.Next(now)
	}

	o.logger.Info("starting orchestrator",
		"users", len(o.users),
		"triggers", len(o.triggers),
		"poll_interval", o.cfg.PollInterval.String(),
	)
	go o.loop(loopCtx, context.WithoutCancel(ctx), o.loopDone)
	return nil
}

// loop polls triggers at a coarse interval. Scheduled cycles run on
// cycleCtx so stopping the loop does not cancel them.
func (o *Orchestrator) loop(ctx, cycleCtx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	lastStatus := o.deps.Clock()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator timer loop exiting")
			o.mu.Lock()
			if o.loopDone == done {
				o.running = false
			}
			o.mu.Unlock()
			return
		case <-ticker.C:
			now := o.deps.Clock()
			o.tick(cycleCtx, now)
			if now.Sub(lastStatus) >= statusLogEvery {
				o.logStatus()
				lastStatus = now
			}
		}
	}
}

// tick fires every trigger that is due at now.
func (o *Orchestrator) tick(ctx context.Context, now time.Time) {
	for _, t := range o.triggers {
		o.mu.RLock()
		due := !now.Before(t.next)
		o.mu.RUnlock()
		if !due {
			continue
		}
		o.logger.Info("trigger fired", "trigger", t.name, "kind", t.kind)
		o.fire(ctx, t.kind)

		o.mu.Lock()
		t.next = t.sched.Next(now)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) fire(ctx context.Context, kind Kind) {
	for _, id := range o.Users() {
		var err error
		switch kind {
		case KindApply:
			_, err = o.launch(ctx, id, cycle.ModeApply)
		case KindDiscover:
			_, err = o.launch(ctx, id, cycle.ModeDiscover)
		case KindMaintenance:
			err = o.maintain(ctx, id)
		}
		if err != nil && !errors.Is(err, model.ErrUserNotFound) {
			o.logger.Warn("scheduled run not started", "user_id", id, "kind", kind, "error", err)
		}
	}
}

func (o *Orchestrator) maintain(ctx context.Context, userID string) error {
	o.mu.RLock()
	e, ok := o.users[userID]
	var reg model.UserRegistration
	if ok {
		reg = e.reg
	}
	o.mu.RUnlock()
	if !ok {
		return model.ErrUserNotFound
	}
	o.deps.Maintenance(ctx, reg)
	return nil
}

func (o *Orchestrator) logMaintenance(_ context.Context, reg model.UserRegistration) {
	o.logger.Info("maintenance window", "user_id", reg.UserID, "skills", len(reg.Profile.Skills))
}

// launch starts a cycle for userID in its own goroutine. The returned
// channel receives the summary when the cycle finishes.
func (o *Orchestrator) launch(ctx context.Context, userID string, mode cycle.Mode) (<-chan cycle.Summary, error) {
	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		return nil, ErrStopping
	}
	e, ok := o.users[userID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", userID, model.ErrUserNotFound)
	}
	reg := e.reg
	reg.SearchQueries = slices.Clone(reg.SearchQueries)
	e.inflight.Add(1)
	o.wg.Add(1)
	o.active++
	o.mu.Unlock()

	c := cycle.New(reg, mode, o.cfg.Cycle, cycle.Deps{
		Sources: o.deps.Sources,
		Dedupe:  o.deps.Dedupe,
		Ranker:  o.deps.Ranker,
		Quota:   o.deps.Quota,
		Store:   o.deps.Store,
		Channel: e.channel,
		Logger:  o.logger,
		Clock:   o.deps.Clock,
		Sleep:   o.deps.Sleep,
	})

	out := make(chan cycle.Summary, 1)
	go func() {
		defer o.wg.Done()
		defer e.inflight.Done()

		sum := c.Run(ctx)

		o.mu.Lock()
		o.active--
		e.last = &sum
		if mode == cycle.ModeDiscover && sum.State == cycle.StateCompleted {
			e.backlog = sum.Backlog
		}
		o.mu.Unlock()
		out <- sum
	}()
	return out, nil
}

// TriggerManualCycle starts an out-of-band apply cycle and returns without
// waiting for it.
func (o *Orchestrator) TriggerManualCycle(userID string) error {
	_, err := o.launch(context.Background(), userID, cycle.ModeApply)
	return err
}

// RunManualCycle runs an out-of-band cycle and waits for its summary. The
// cycle runs on ctx, so a deadline on ctx bounds it; a cancelled cycle
// still returns its (aborted) summary.
func (o *Orchestrator) RunManualCycle(ctx context.Context, userID string, mode cycle.Mode) (cycle.Summary, error) {
	out, err := o.launch(ctx, userID, mode)
	if err != nil {
		return cycle.Summary{}, err
	}
	return <-out, nil
}

// Stop ends the timer loop, waits for in-flight cycles to finish, closes
// every submission channel and clears the registry.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	// A loop that exited on its own still needs its cycles and channels reaped.
	if !o.running && o.loopDone == nil {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.running = false
	o.stopping = true
	cancel, done := o.cancel, o.loopDone
	o.cancel, o.loopDone = nil, nil
	o.mu.Unlock()

	cancel()
	<-done
	o.logger.Info("waiting for in-flight cycles")
	o.wg.Wait()

	o.mu.Lock()
	users := o.users
	o.users = make(map[string]*entry)
	o.stopping = false
	o.mu.Unlock()

	for id, e := range users {
		if err := e.channel.Close(); err != nil {
			o.logger.Warn("closing submission channel failed", "user_id", id, "error", err)
		}
	}
	o.logger.Info("orchestrator stopped", "users_released", len(users))
	return nil
}

// Close releases every submission channel without requiring Start. It is
// used by one-shot commands that only run manual cycles.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.stopping = true
	o.mu.Unlock()
	o.wg.Wait()

	o.mu.Lock()
	users := o.users
	o.users = make(map[string]*entry)
	o.stopping = false
	o.mu.Unlock()
	for id, e := range users {
		if err := e.channel.Close(); err != nil {
			o.logger.Warn("closing submission channel failed", "user_id", id, "error", err)
		}
	}
}

// Status returns the running flag, user count and next fire times.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := Status{
		Running:      o.running,
		Users:        len(o.users),
		ActiveCycles: o.active,
		Degraded:     o.deps.Quota != nil && o.deps.Quota.Degraded(),
	}
	for _, t := range o.triggers {
		st.Triggers = append(st.Triggers, TriggerStatus{Name: t.name, Kind: t.kind, Next: t.next})
	}
	return st
}

func (o *Orchestrator) logStatus() {
	st := o.Status()
	args := []any{"users", st.Users, "active_cycles", st.ActiveCycles, "degraded", st.Degraded}
	for _, t := range st.Triggers {
		args = append(args, t.Name, t.Next.Format(time.DateTime))
	}
	o.logger.Info("orchestrator status", args...)
}

// UserStats returns today's count, the all-time total and the response
// rate for a registered user. When the store is unavailable the in-memory
// counters answer for today.
func (o *Orchestrator) UserStats(ctx context.Context, userID string) (model.UserStats, error) {
	o.mu.RLock()
	_, ok := o.users[userID]
	o.mu.RUnlock()
	if !ok {
		return model.UserStats{}, fmt.Errorf("%s: %w", userID, model.ErrUserNotFound)
	}

	limits := o.deps.Quota.Limits()
	now := o.deps.Clock()
	stats, err := o.deps.Store.Stats(ctx, userID, o.deps.Quota.DayStart(now))
	if err != nil {
		o.logger.Error("loading stats failed, using in-memory counters", "user_id", userID, "error", err)
		stats = model.UserStats{UserID: userID}
	}
	stats.ApplicationsToday = max(stats.ApplicationsToday, o.deps.Quota.DailyCount(userID, now))
	stats.UserID = userID
	stats.DailyLimit = limits.MaxPerDay
	stats.HourlyLimit = limits.MaxPerHour
	return stats, nil
}

// AllUserStats returns stats for every registered user, sorted by id.
func (o *Orchestrator) AllUserStats(ctx context.Context) []model.UserStats {
	var out []model.UserStats
	for _, id := range o.Users() {
		st, err := o.UserStats(ctx, id)
		if err != nil {
			continue // removed concurrently
		}
		out = append(out, st)
	}
	return out
}
