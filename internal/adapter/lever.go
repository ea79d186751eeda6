package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/filter"
	"github.com/amishk599/autoapply/internal/model"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Team         string   `json:"team"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	DescriptionPlain string          `json:"descriptionPlain"`
	Categories       leverCategories `json:"categories"`
	Tags             []string        `json:"tags"`
	CreatedAt        int64           `json:"createdAt"`
	HostedURL        string          `json:"hostedUrl"`
}

// LeverAdapter searches one company's Lever postings, filtering locally.
type LeverAdapter struct {
	companySlug string
	companyName string
	client      *http.Client
}

// NewLeverAdapter creates a new adapter for a Lever board.
func NewLeverAdapter(companySlug string, companyName string, client *http.Client) *LeverAdapter {
	return &LeverAdapter{
		companySlug: companySlug,
		companyName: companyName,
		client:      client,
	}
}

func (a *LeverAdapter) Name() string { return "lever:" + a.companySlug }

// Fetch retrieves the board and returns up to limit postings matching query and location.
func (a *LeverAdapter) Fetch(ctx context.Context, query, location string, limit int) ([]model.JobPosting, error) {
	url := fmt.Sprintf("%s/%s?mode=json", leverBaseURL, a.companySlug)

	var leverJobs []leverJob
	if err := getJSON(ctx, a.client, url, a.Name(), &leverJobs); err != nil {
		return nil, err
	}

	jobs := make([]model.JobPosting, 0, len(leverJobs))
	for _, lj := range leverJobs {
		// Prefer allLocations if available, fallback to location
		loc := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			loc = strings.Join(lj.Categories.AllLocations, ", ")
		}

		// createdAt is Unix milliseconds
		var postedAt *time.Time
		if lj.CreatedAt > 0 {
			t := time.UnixMilli(lj.CreatedAt)
			postedAt = &t
		}

		jobs = append(jobs, model.JobPosting{
			ID:          lj.ID,
			Company:     a.companyName,
			Title:       lj.Text,
			Location:    loc,
			Description: lj.DescriptionPlain,
			URL:         lj.HostedURL,
			Skills:      lj.Tags,
			PostedAt:    postedAt,
			Source:      model.SourceLever,
		})
	}

	return filter.NewQueryFilter(query, location).Apply(jobs, limit), nil
}
