package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amishk599/autoapply/internal/filter"
	"github.com/amishk599/autoapply/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	UpdatedAt   string             `json:"updated_at"`
	Content     string             `json:"content"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseAdapter searches one company's Greenhouse board. The board API
// has no search, so the whole board is fetched and filtered locally.
type GreenhouseAdapter struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewGreenhouseAdapter creates a new adapter for a Greenhouse board.
func NewGreenhouseAdapter(boardToken string, companyName string, client *http.Client) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

func (a *GreenhouseAdapter) Name() string { return "greenhouse:" + a.boardToken }

// Fetch retrieves the board and returns up to limit postings matching query and location.
func (a *GreenhouseAdapter) Fetch(ctx context.Context, query, location string, limit int) ([]model.JobPosting, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, a.boardToken)

	var ghResp greenhouseResponse
	if err := getJSON(ctx, a.client, url, a.Name(), &ghResp); err != nil {
		return nil, err
	}

	jobs := make([]model.JobPosting, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		job := model.JobPosting{
			ID:          fmt.Sprintf("%d", gj.ID),
			Company:     a.companyName,
			Title:       gj.Title,
			Location:    gj.Location.Name,
			Description: extractText(gj.Content),
			URL:         gj.AbsoluteURL,
			Source:      model.SourceGreenhouse,
		}

		if gj.UpdatedAt != "" {
			t, err := time.Parse(time.RFC3339, gj.UpdatedAt)
			if err == nil {
				job.PostedAt = &t
			}
		}

		jobs = append(jobs, job)
	}

	return filter.NewQueryFilter(query, location).Apply(jobs, limit), nil
}
