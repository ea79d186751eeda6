package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/autoapply/internal/adapter"
	"github.com/amishk599/autoapply/internal/dedupe"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/quota"
	"github.com/amishk599/autoapply/internal/ranker"
)

// Mode selects whether a cycle submits applications.
type Mode string

const (
	// ModeApply runs the full pipeline and submits.
	ModeApply Mode = "apply"
	// ModeDiscover ranks jobs into a backlog and never submits.
	ModeDiscover Mode = "discover"
)

// State is a step of the cycle state machine.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateScoring     State = "scoring"
	StateSubmitting  State = "submitting"
	StateCompleted   State = "completed"
	StateAborted     State = "aborted"
)

// Reasons a cycle finished.
const (
	ReasonExhausted = "ranked jobs exhausted"
	ReasonQuota     = "quota reached"
	ReasonDiscover  = "discovery only"
	ReasonCancelled = "cancelled"
	ReasonPanic     = "internal error"
)

// Config holds the per-run tunables.
type Config struct {
	MinMatchScore  float64
	DelayMin       time.Duration
	DelayMax       time.Duration
	Location       string // used when the registration has none
	LimitPerSource int
	BacklogSize    int
}

// Deps are the collaborators a cycle drives. Clock, Sleep and Rand are
// optional and default to the real clock, time.Sleep and math/rand.
type Deps struct {
	Sources []model.JobSource
	Dedupe  *dedupe.Deduplicator
	Ranker  *ranker.Ranker
	Quota   *quota.Tracker
	Store   model.ApplicationStore
	Channel model.SubmissionChannel
	Logger  *slog.Logger

	Clock func() time.Time
	Sleep func(time.Duration)
	Rand  func() float64
}

// Summary reports what one cycle did. It is returned even when sources
// failed or jobs were skipped.
type Summary struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Mode           Mode              `json:"mode"`
	State          State             `json:"state"`
	Discovered     int               `json:"discovered"`
	Unique         int               `json:"unique"`
	Scored         int               `json:"scored"`
	Eligible       int               `json:"eligible"`
	Submitted      int               `json:"submitted"`
	Skipped        int               `json:"skipped"`
	AlreadyApplied int               `json:"already_applied"`
	SourceErrors   int               `json:"source_errors"`
	Reason         string            `json:"reason"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Backlog        []model.ScoredJob `json:"backlog,omitempty"`
}

// Cycle is one run of discovery, scoring and submission for a single user.
// A Cycle is used for exactly one Run.
type Cycle struct {
	reg    model.UserRegistration
	mode   Mode
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// New builds a cycle for reg.
func New(reg model.UserRegistration, mode Mode, cfg Config, deps Deps) *Cycle {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	return &Cycle{
		reg:    reg,
		mode:   mode,
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("user_id", reg.UserID),
		state:  StateIdle,
	}
}

// State returns the current state.
func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cycle) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run executes the cycle and returns its summary. It never panics and
// never returns an error; failures are reflected in the summary counts.
// Cancelling ctx moves the cycle to Aborted at the next step boundary.
func (c *Cycle) Run(ctx context.Context) (sum Summary) {
	sum = Summary{
		ID:        uuid.NewString(),
		UserID:    c.reg.UserID,
		Mode:      c.mode,
		StartedAt: c.deps.Clock(),
	}
	logger := c.logger.With("cycle_id", sum.ID, "mode", c.mode)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle panicked", "state", c.State(), "error", fmt.Sprint(r))
			c.setState(StateAborted)
			sum.Reason = ReasonPanic
		}
		sum.State = c.State()
		sum.FinishedAt = c.deps.Clock()
		logger.Info("cycle finished",
			"state", sum.State,
			"reason", sum.Reason,
			"discovered", sum.Discovered,
			"unique", sum.Unique,
			"eligible", sum.Eligible,
			"submitted", sum.Submitted,
			"skipped", sum.Skipped,
			"already_applied", sum.AlreadyApplied,
			"source_errors", sum.SourceErrors,
			"duration", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond),
		)
	}()

	if c.mode == ModeApply {
		c.deps.Quota.ResetIfNewDay(ctx, c.reg.UserID, c.deps.Clock())
	}

	c.setState(StateDiscovering)
	postings := c.discover(ctx, logger, &sum)
	if c.abortIfDone(ctx, &sum) {
		return sum
	}

	c.setState(StateScoring)
	unique := c.deps.Dedupe.Dedupe(postings)
	sum.Unique = len(unique)
	sum.Scored = len(unique)
	ranked := c.deps.Ranker.Rank(ctx, c.reg.Profile, unique, c.cfg.MinMatchScore)
	sum.Eligible = len(ranked)
	logger.Info("jobs ranked", "unique", sum.Unique, "eligible", sum.Eligible, "min_score", c.cfg.MinMatchScore)
	if c.abortIfDone(ctx, &sum) {
		return sum
	}

	if c.mode == ModeDiscover {
		n := min(len(ranked), c.cfg.BacklogSize)
		sum.Backlog = ranked[:n:n]
		sum.Reason = ReasonDiscover
		c.setState(StateCompleted)
		return sum
	}

	c.setState(StateSubmitting)
	sum.Reason = c.submitAll(ctx, logger, ranked, &sum)
	if sum.Reason == ReasonCancelled {
		c.setState(StateAborted)
		return sum
	}
	c.setState(StateCompleted)
	return sum
}

func (c *Cycle) abortIfDone(ctx context.Context, sum *Summary) bool {
	if ctx.Err() == nil {
		return false
	}
	sum.Reason = ReasonCancelled
	c.setState(StateAborted)
	return true
}

// discover fetches every search query from every source. Failed fetches
// are logged and counted, never fatal.
func (c *Cycle) discover(ctx context.Context, logger *slog.Logger, sum *Summary) []model.JobPosting {
	location := c.reg.Location
	if location == "" {
		location = c.cfg.Location
	}

	var postings []model.JobPosting
	for _, res := range adapter.FetchAll(ctx, c.deps.Sources, c.reg.SearchQueries, location, c.cfg.LimitPerSource) {
		if res.Err != nil {
			sum.SourceErrors++
			logger.Warn("source fetch failed, skipping",
				"source", res.Source,
				"query", res.Query,
				"error", res.Err,
			)
			continue
		}
		logger.Debug("fetched postings", "source", res.Source, "query", res.Query, "count", len(res.Postings))
		postings = append(postings, res.Postings...)
	}
	sum.Discovered = len(postings)
	return postings
}

// submitAll walks the ranked jobs best-first and returns why it stopped.
func (c *Cycle) submitAll(ctx context.Context, logger *slog.Logger, ranked []model.ScoredJob, sum *Summary) string {
	for i, sj := range ranked {
		if ctx.Err() != nil {
			return ReasonCancelled
		}

		res, ok := c.deps.Quota.Reserve(ctx, c.reg.UserID, c.deps.Clock())
		if !ok {
			logger.Info("quota reached, ending cycle", "remaining", len(ranked)-i)
			return ReasonQuota
		}

		submitted, err := c.submitOne(ctx, logger, sj, res)
		if err != nil {
			sum.Skipped++
			logger.Warn("submission failed, skipping job",
				"company", sj.Job.Company,
				"title", sj.Job.Title,
				"error", err,
			)
			continue
		}
		if !submitted {
			sum.AlreadyApplied++
			continue
		}
		sum.Submitted++

		if i < len(ranked)-1 {
			c.deps.Sleep(c.delay())
		}
	}
	return ReasonExhausted
}

// submitOne settles the reservation on every path, panics included. It
// reports false without error when the user already applied to the job.
func (c *Cycle) submitOne(ctx context.Context, logger *slog.Logger, sj model.ScoredJob, res *quota.Reservation) (bool, error) {
	// No-op once committed.
	defer res.Release()

	key := c.deps.Dedupe.Key(sj.Job)

	// Another cycle for this user is submitting the same job.
	release, claimed := c.deps.Quota.Claim(c.reg.UserID, key)
	if !claimed {
		logger.Debug("job in flight in another cycle, skipping", "company", sj.Job.Company, "title", sj.Job.Title)
		return false, nil
	}
	defer release()

	applied, err := c.deps.Store.HasApplied(ctx, c.reg.UserID, key)
	if err != nil {
		logger.Error("checking application history failed", "company", sj.Job.Company, "error", err)
	}
	if applied {
		logger.Debug("already applied, skipping", "company", sj.Job.Company, "title", sj.Job.Title)
		return false, nil
	}

	letter := c.deps.Ranker.CoverLetter(ctx, c.reg.Profile, sj.Job)
	payload := model.ApplicationPayload{
		CoverLetter: letter,
		Contact:     c.reg.Profile.ContactFields,
		MatchScore:  sj.Score,
	}
	if err := c.deps.Channel.Submit(ctx, sj.Job, payload); err != nil {
		return false, err
	}

	now := c.deps.Clock()
	app := &model.Application{
		UserID:      c.reg.UserID,
		JobKey:      key,
		JobTitle:    sj.Job.Title,
		Company:     sj.Job.Company,
		JobURL:      sj.Job.URL,
		Source:      sj.Job.Source,
		MatchScore:  sj.Score,
		CoverLetter: letter,
		AppliedAt:   now,
		Status:      model.StatusApplied,
	}
	if err := c.deps.Store.SaveApplication(ctx, app); err != nil {
		logger.Error("saving application failed", "company", sj.Job.Company, "title", sj.Job.Title, "error", err)
	}
	res.Commit(ctx, now)

	logger.Info("applied",
		"company", sj.Job.Company,
		"title", sj.Job.Title,
		"score", sj.Score,
	)
	return true, nil
}

// delay picks a pause uniformly in [DelayMin, DelayMax].
func (c *Cycle) delay() time.Duration {
	span := c.cfg.DelayMax - c.cfg.DelayMin
	if span <= 0 {
		return c.cfg.DelayMin
	}
	return c.cfg.DelayMin + time.Duration(c.deps.Rand()*float64(span))
}
