package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/migrations"
)

// Ensure PostgresStore implements model.Store.
var _ model.Store = (*PostgresStore)(nil)

// PostgresStore is the Store for deployments that share one database
// between several orchestrator processes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, verifies the connection and
// applies the embedded Postgres migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if err := migratePostgres(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// migratePostgres runs goose over a short-lived database/sql handle built
// from the pool's connection config.
func migratePostgres(pool *pgxpool.Pool) error {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer db.Close()
	if err := migrations.RunPostgres(db); err != nil {
		return fmt.Errorf("migrating postgres: %w", err)
	}
	return nil
}

// SaveApplication inserts app and sets its ID. An empty status is stored as applied.
func (s *PostgresStore) SaveApplication(ctx context.Context, app *model.Application) error {
	status := app.Status
	if status == "" {
		status = model.StatusApplied
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO applications
			(user_id, job_id, job_title, company, job_url, source, match_score, status, applied_at, cover_letter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		app.UserID, app.JobKey, app.JobTitle, app.Company, app.JobURL, string(app.Source),
		app.MatchScore, string(status), app.AppliedAt, app.CoverLetter,
	).Scan(&app.ID)
	if err != nil {
		return fmt.Errorf("saving application for %s: %w", app.UserID, err)
	}
	app.Status = status
	return nil
}

// HasApplied reports whether userID already has an application for jobKey.
func (s *PostgresStore) HasApplied(ctx context.Context, userID, jobKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM applications WHERE user_id = $1 AND job_id = $2)", userID, jobKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking application %s for %s: %w", jobKey, userID, err)
	}
	return exists, nil
}

// ListApplications returns up to limit applications for userID, newest first.
func (s *PostgresStore) ListApplications(ctx context.Context, userID string, limit int) ([]model.Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, job_id, job_title, company, job_url, source, match_score, status,
			applied_at, cover_letter, response_received, response_date
		FROM applications WHERE user_id = $1 ORDER BY applied_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing applications for %s: %w", userID, err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		var (
			a      model.Application
			source string
			status string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.JobKey, &a.JobTitle, &a.Company, &a.JobURL, &source,
			&a.MatchScore, &status, &a.AppliedAt, &a.CoverLetter, &a.ResponseReceived, &a.ResponseAt); err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		a.Source = model.Source(source)
		a.Status = model.ApplicationStatus(status)
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing applications for %s: %w", userID, err)
	}
	return apps, nil
}

// UpdateApplicationStatus moves application id to status, locking the row
// so the transition check and the write see the same current status.
func (s *PostgresStore) UpdateApplicationStatus(ctx context.Context, id int64, status model.ApplicationStatus, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("updating application %d: %w", id, err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, "SELECT status FROM applications WHERE id = $1 FOR UPDATE", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("application %d: not found", id)
	}
	if err != nil {
		return fmt.Errorf("loading application %d: %w", id, err)
	}
	if !model.ApplicationStatus(current).CanTransitionTo(status) {
		return fmt.Errorf("application %d: cannot move from %s to %s", id, current, status)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE applications SET status = $1, response_received = $2, response_date = COALESCE(response_date, $3)
		WHERE id = $4`,
		string(status), status.IsResponse(), at, id,
	); err != nil {
		return fmt.Errorf("updating application %d: %w", id, err)
	}
	return tx.Commit(ctx)
}

// Stats aggregates totals for userID. Today is the calendar day starting at dayStart.
func (s *PostgresStore) Stats(ctx context.Context, userID string, dayStart time.Time) (model.UserStats, error) {
	stats := model.UserStats{UserID: userID}
	var responded int
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE applied_at >= $2 AND applied_at < $3),
			COUNT(*) FILTER (WHERE response_received)
		FROM applications WHERE user_id = $1`,
		userID, dayStart, dayStart.AddDate(0, 0, 1),
	).Scan(&stats.TotalApplications, &stats.ApplicationsToday, &responded)
	if err != nil {
		return stats, fmt.Errorf("stats for %s: %w", userID, err)
	}
	stats.ResponseRate = responseRate(responded, stats.TotalApplications)
	return stats, nil
}

// EnsureQuota returns the quota row for userID on date, creating it at zero.
func (s *PostgresStore) EnsureQuota(ctx context.Context, userID, date string) (model.QuotaRecord, error) {
	rec := model.QuotaRecord{UserID: userID, Date: date}
	if _, err := s.pool.Exec(ctx,
		"INSERT INTO application_limits (user_id, date) VALUES ($1, $2) ON CONFLICT (user_id, date) DO NOTHING",
		userID, date,
	); err != nil {
		return rec, fmt.Errorf("creating quota row for %s/%s: %w", userID, date, err)
	}
	err := s.pool.QueryRow(ctx,
		"SELECT applications_count, last_application_time FROM application_limits WHERE user_id = $1 AND date = $2",
		userID, date,
	).Scan(&rec.Count, &rec.LastApplication)
	if err != nil {
		return rec, fmt.Errorf("loading quota row for %s/%s: %w", userID, date, err)
	}
	return rec, nil
}

// IncrementQuota bumps the count for userID on date and records at as the
// last application time.
func (s *PostgresStore) IncrementQuota(ctx context.Context, userID, date string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO application_limits (user_id, date, applications_count, last_application_time)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id, date) DO UPDATE SET
			applications_count = application_limits.applications_count + 1,
			last_application_time = EXCLUDED.last_application_time`,
		userID, date, at,
	)
	if err != nil {
		return fmt.Errorf("incrementing quota for %s/%s: %w", userID, date, err)
	}
	return nil
}

// CountApplicationsSince counts applications for userID at or after since.
func (s *PostgresStore) CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM applications WHERE user_id = $1 AND applied_at >= $2", userID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting applications for %s: %w", userID, err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
