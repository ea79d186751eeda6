package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/migrations"
)

// timeLayout sorts lexicographically, so range queries work on TEXT columns.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Ensure SQLiteStore implements model.Store.
var _ model.Store = (*SQLiteStore)(nil)

// SQLiteStore keeps applications and daily quota rows in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the embedded migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// SaveApplication inserts app and sets its ID.
func (s *SQLiteStore) SaveApplication(ctx context.Context, app *model.Application) error {
	status := app.Status
	if status == "" {
		status = model.StatusApplied
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications
			(user_id, job_id, job_title, company, job_url, source, match_score, status, applied_at, cover_letter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.UserID, app.JobKey, app.JobTitle, app.Company, app.JobURL, string(app.Source),
		app.MatchScore, string(status), formatTime(app.AppliedAt), app.CoverLetter,
	)
	if err != nil {
		return fmt.Errorf("saving application for %s: %w", app.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("saving application for %s: %w", app.UserID, err)
	}
	app.ID = id
	app.Status = status
	return nil
}

// HasApplied returns true if userID already has an application for jobKey.
func (s *SQLiteStore) HasApplied(ctx context.Context, userID, jobKey string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM applications WHERE user_id = ? AND job_id = ? LIMIT 1", userID, jobKey,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking application %s for %s: %w", jobKey, userID, err)
	}
	return true, nil
}

// ListApplications returns the user's most recent applications first.
func (s *SQLiteStore) ListApplications(ctx context.Context, userID string, limit int) ([]model.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, job_id, job_title, company, job_url, source, match_score, status,
			applied_at, cover_letter, response_received, response_date
		FROM applications WHERE user_id = ? ORDER BY applied_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing applications for %s: %w", userID, err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		var (
			a          model.Application
			source     string
			status     string
			appliedAt  string
			responded  int
			responseAt sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.JobKey, &a.JobTitle, &a.Company, &a.JobURL, &source,
			&a.MatchScore, &status, &appliedAt, &a.CoverLetter, &responded, &responseAt); err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		a.Source = model.Source(source)
		a.Status = model.ApplicationStatus(status)
		a.AppliedAt = parseTime(appliedAt)
		a.ResponseReceived = responded != 0
		if responseAt.Valid {
			t := parseTime(responseAt.String)
			a.ResponseAt = &t
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing applications for %s: %w", userID, err)
	}
	return apps, nil
}

// UpdateApplicationStatus moves an application along the hiring funnel.
// Any status other than applied marks the application as responded.
func (s *SQLiteStore) UpdateApplicationStatus(ctx context.Context, id int64, status model.ApplicationStatus, at time.Time) error {
	var current string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM applications WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("application %d: not found", id)
	}
	if err != nil {
		return fmt.Errorf("loading application %d: %w", id, err)
	}
	if !model.ApplicationStatus(current).CanTransitionTo(status) {
		return fmt.Errorf("application %d: cannot move from %s to %s", id, current, status)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE applications SET status = ?, response_received = ?, response_date = COALESCE(response_date, ?)
		WHERE id = ?`,
		string(status), boolToInt(status.IsResponse()), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("updating application %d: %w", id, err)
	}
	return nil
}

// Stats returns today's count, the all-time count and the response rate.
func (s *SQLiteStore) Stats(ctx context.Context, userID string, dayStart time.Time) (model.UserStats, error) {
	stats := model.UserStats{UserID: userID}
	var responded int
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN applied_at >= ? AND applied_at < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(response_received), 0)
		FROM applications WHERE user_id = ?`,
		formatTime(dayStart), formatTime(dayStart.AddDate(0, 0, 1)), userID,
	).Scan(&stats.TotalApplications, &stats.ApplicationsToday, &responded)
	if err != nil {
		return stats, fmt.Errorf("stats for %s: %w", userID, err)
	}
	stats.ResponseRate = responseRate(responded, stats.TotalApplications)
	return stats, nil
}

// EnsureQuota creates today's quota row if missing and returns it.
func (s *SQLiteStore) EnsureQuota(ctx context.Context, userID, date string) (model.QuotaRecord, error) {
	rec := model.QuotaRecord{UserID: userID, Date: date}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO application_limits (user_id, date) VALUES (?, ?)", userID, date,
	); err != nil {
		return rec, fmt.Errorf("creating quota row for %s/%s: %w", userID, date, err)
	}

	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT applications_count, last_application_time FROM application_limits WHERE user_id = ? AND date = ?",
		userID, date,
	).Scan(&rec.Count, &last)
	if err != nil {
		return rec, fmt.Errorf("loading quota row for %s/%s: %w", userID, date, err)
	}
	if last.Valid {
		t := parseTime(last.String)
		rec.LastApplication = &t
	}
	return rec, nil
}

// IncrementQuota adds one submission to the (userID, date) row.
func (s *SQLiteStore) IncrementQuota(ctx context.Context, userID, date string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO application_limits (user_id, date, applications_count, last_application_time)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			applications_count = applications_count + 1,
			last_application_time = excluded.last_application_time`,
		userID, date, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("incrementing quota for %s/%s: %w", userID, date, err)
	}
	return nil
}

// CountApplicationsSince counts the user's applications at or after since.
func (s *SQLiteStore) CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM applications WHERE user_id = ? AND applied_at >= ?",
		userID, formatTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting applications for %s: %w", userID, err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// responseRate is responded/total as a percentage rounded to two decimals.
func responseRate(responded, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(responded)/float64(total)*10000) / 100
}
