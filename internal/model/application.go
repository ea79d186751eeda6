package model

import (
	"context"
	"fmt"
	"time"
)

// ApplicationStatus tracks a submitted application through the hiring funnel.
type ApplicationStatus string

const (
	StatusApplied   ApplicationStatus = "applied"
	StatusViewed    ApplicationStatus = "viewed"
	StatusInterview ApplicationStatus = "interview"
	StatusOffer     ApplicationStatus = "offer"
	StatusRejected  ApplicationStatus = "rejected"
)

var validTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusApplied:   {StatusViewed, StatusInterview, StatusRejected},
	StatusViewed:    {StatusInterview, StatusRejected},
	StatusInterview: {StatusOffer, StatusRejected},
}

// ParseApplicationStatus validates a raw status string.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	switch st := ApplicationStatus(s); st {
	case StatusApplied, StatusViewed, StatusInterview, StatusOffer, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsResponse reports whether the status means the employer reacted.
func (s ApplicationStatus) IsResponse() bool {
	return s != StatusApplied && s != ""
}

// Application is the durable record of one successful submission.
type Application struct {
	ID               int64
	UserID           string
	JobKey           string // deduplication key of the posting at submission time
	JobTitle         string
	Company          string
	JobURL           string
	Source           Source
	MatchScore       float64
	CoverLetter      string
	AppliedAt        time.Time
	Status           ApplicationStatus
	ResponseReceived bool
	ResponseAt       *time.Time
}

// QuotaRecord is the persisted per-(user, calendar date) submission counter.
type QuotaRecord struct {
	UserID          string
	Date            string // YYYY-MM-DD in the process time zone
	Count           int
	LastApplication *time.Time
}

// UserStats is the aggregate view returned by the control surface.
type UserStats struct {
	UserID            string  `json:"user_id"`
	ApplicationsToday int     `json:"applications_today"`
	TotalApplications int     `json:"total_applications"`
	ResponseRate      float64 `json:"response_rate"` // percentage, two decimals
	DailyLimit        int     `json:"daily_limit"`
	HourlyLimit       int     `json:"hourly_limit"`
}

// ApplicationPayload is what a submission channel sends for one job.
type ApplicationPayload struct {
	CoverLetter string        `json:"cover_letter"`
	Contact     ContactFields `json:"contact"`
	MatchScore  float64       `json:"match_score"`
}

// SubmissionChannel delivers an application on behalf of one user.
// A nil error from Submit means the application was accepted.
type SubmissionChannel interface {
	Submit(ctx context.Context, job JobPosting, payload ApplicationPayload) error
	Close() error
}

// TextGenerator produces match scores and cover letters. Implementations may
// fail for any reason; callers fall back to deterministic computations.
type TextGenerator interface {
	Score(ctx context.Context, profile UserProfile, job JobPosting) (float64, error)
	WriteCoverLetter(ctx context.Context, profile UserProfile, job JobPosting) (string, error)
}

// ApplicationStore persists applications and answers history questions.
type ApplicationStore interface {
	SaveApplication(ctx context.Context, app *Application) error
	HasApplied(ctx context.Context, userID, jobKey string) (bool, error)
	ListApplications(ctx context.Context, userID string, limit int) ([]Application, error)
	UpdateApplicationStatus(ctx context.Context, id int64, status ApplicationStatus, at time.Time) error
	// Stats counts applications since dayStart plus all-time totals.
	Stats(ctx context.Context, userID string, dayStart time.Time) (UserStats, error)
}

// QuotaStore persists per-day submission counters.
type QuotaStore interface {
	// EnsureQuota creates a zero row for (userID, date) if none exists and
	// returns the current row. An existing row is never reset.
	EnsureQuota(ctx context.Context, userID, date string) (QuotaRecord, error)
	IncrementQuota(ctx context.Context, userID, date string, at time.Time) error
	CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Store is the full durable store.
type Store interface {
	ApplicationStore
	QuotaStore
	Close() error
}
