package submit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/amishk599/autoapply/internal/model"
)

// Ensure HTTPChannel implements model.SubmissionChannel.
var _ model.SubmissionChannel = (*HTTPChannel)(nil)

// applicationsPath is where the application service accepts submissions.
const applicationsPath = "/api/applications"

// maxRetryWait caps how long a single 429 can hold up a cycle.
const maxRetryWait = 30 * time.Second

// HTTPChannel posts applications to an application service on behalf of one
// user, authenticating with that user's token.
type HTTPChannel struct {
	userID string
	client *resty.Client
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
	closed atomic.Bool
}

// NewHTTPChannel returns a channel that submits to baseURL with a bearer token.
func NewHTTPChannel(userID, baseURL, authToken string, httpClient *http.Client, logger *slog.Logger) *HTTPChannel {
	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetAuthToken(authToken).
		SetHeader("Content-Type", "application/json")
	return &HTTPChannel{
		userID: userID,
		client: client,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// submitRequest is the JSON body sent for one application.
type submitRequest struct {
	Job         submitJob           `json:"job"`
	CoverLetter string              `json:"cover_letter"`
	Contact     model.ContactFields `json:"contact"`
	MatchScore  float64             `json:"match_score"`
}

type submitJob struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Company  string       `json:"company"`
	Location string       `json:"location"`
	URL      string       `json:"url"`
	Source   model.Source `json:"source"`
}

// Submit posts the application. Any 2xx response is success. A 429 is
// retried once after the advertised Retry-After (at least one second).
func (c *HTTPChannel) Submit(ctx context.Context, job model.JobPosting, payload model.ApplicationPayload) error {
	if c.closed.Load() {
		return model.ErrChannelClosed
	}

	body := submitRequest{
		Job: submitJob{
			ID:       job.ID,
			Title:    job.Title,
			Company:  job.Company,
			Location: job.Location,
			URL:      job.URL,
			Source:   job.Source,
		},
		CoverLetter: payload.CoverLetter,
		Contact:     payload.Contact,
		MatchScore:  payload.MatchScore,
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		wait := model.ParseRetryAfter(resp.Header().Get("Retry-After"))
		if wait <= 0 {
			wait = time.Second
		}
		wait = min(wait, maxRetryWait)
		c.logger.Warn("application service rate limited, retrying",
			"user_id", c.userID,
			"company", job.Company,
			"retry_after", wait,
		)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
		resp, err = c.post(ctx, body)
		if err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}

	if !resp.IsSuccess() {
		return &model.HTTPError{
			StatusCode: resp.StatusCode(),
			RetryAfter: model.ParseRetryAfter(resp.Header().Get("Retry-After")),
			Err:        fmt.Errorf("submit %s at %s rejected", job.Title, job.Company),
		}
	}
	c.logger.Debug("application accepted",
		"user_id", c.userID,
		"company", job.Company,
		"title", job.Title,
		"status", resp.StatusCode(),
	)
	return nil
}

func (c *HTTPChannel) post(ctx context.Context, body submitRequest) (*resty.Response, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(applicationsPath)
	if err != nil {
		return nil, fmt.Errorf("post application: %w", err)
	}
	return resp, nil
}

// Close marks the channel closed and drops idle connections.
func (c *HTTPChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.client.GetClient().CloseIdleConnections()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
