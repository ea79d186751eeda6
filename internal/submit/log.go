package submit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/amishk599/autoapply/internal/model"
)

// Ensure LogChannel implements model.SubmissionChannel.
var _ model.SubmissionChannel = (*LogChannel)(nil)

// LogChannel records applications in the log instead of sending them
// anywhere. It is the default channel and is used for dry runs.
type LogChannel struct {
	userID string
	logger *slog.Logger
	closed atomic.Bool
}

// NewLogChannel returns a channel that logs each submission via slog.
func NewLogChannel(userID string, logger *slog.Logger) *LogChannel {
	return &LogChannel{userID: userID, logger: logger}
}

// Submit logs the job and payload summary. It only fails after Close.
func (c *LogChannel) Submit(_ context.Context, job model.JobPosting, payload model.ApplicationPayload) error {
	if c.closed.Load() {
		return model.ErrChannelClosed
	}
	args := []any{
		"user_id", c.userID,
		"company", job.Company,
		"title", job.Title,
		"url", job.URL,
		"match_score", payload.MatchScore,
		"cover_letter_chars", len(payload.CoverLetter),
	}
	if job.PostedAt != nil {
		args = append(args, "posted_at", *job.PostedAt)
	}
	c.logger.Info("application submitted", args...)
	return nil
}

func (c *LogChannel) Close() error {
	c.closed.Store(true)
	return nil
}
