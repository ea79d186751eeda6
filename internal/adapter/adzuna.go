package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
)

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Company     adzunaName     `json:"company"`
	Location    adzunaName     `json:"location"`
	Category    adzunaCategory `json:"category"`
	SalaryMin   float64        `json:"salary_min"`
	SalaryMax   float64        `json:"salary_max"`
	RedirectURL string         `json:"redirect_url"`
	Created     string         `json:"created"`
}

type adzunaName struct {
	DisplayName string `json:"display_name"`
}

type adzunaCategory struct {
	Label string `json:"label"`
}

// AdzunaAdapter searches the Adzuna aggregator, which supports free-text
// query and location natively.
type AdzunaAdapter struct {
	appID   string
	appKey  string
	country string // "gb", "us", "in", ...
	baseURL string
	client  *http.Client
}

// NewAdzunaAdapter constructs an adapter for one Adzuna country index.
func NewAdzunaAdapter(appID, appKey, country string, client *http.Client) *AdzunaAdapter {
	return &AdzunaAdapter{
		appID:   appID,
		appKey:  appKey,
		country: country,
		baseURL: adzunaBaseURL,
		client:  client,
	}
}

func (a *AdzunaAdapter) Name() string { return "adzuna:" + a.country }

// Fetch returns the newest postings for query in location, at most limit.
func (a *AdzunaAdapter) Fetch(ctx context.Context, query, location string, limit int) ([]model.JobPosting, error) {
	if limit <= 0 || limit > adzunaPageSize {
		limit = adzunaPageSize
	}

	params := url.Values{}
	params.Set("app_id", a.appID)
	params.Set("app_key", a.appKey)
	params.Set("results_per_page", strconv.Itoa(limit))
	params.Set("what", query)
	if location != "" {
		params.Set("where", location)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	reqURL := fmt.Sprintf("%s/%s/search/1?%s", a.baseURL, a.country, params.Encode())

	var apiResp adzunaResponse
	if err := getJSON(ctx, a.client, reqURL, a.Name(), &apiResp); err != nil {
		return nil, err
	}

	jobs := make([]model.JobPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		job := model.JobPosting{
			ID:          r.ID,
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Description: extractText(r.Description),
			URL:         r.RedirectURL,
			Source:      model.SourceAdzuna,
		}
		if r.SalaryMin > 0 || r.SalaryMax > 0 {
			job.Salary = &model.Salary{Min: r.SalaryMin, Max: r.SalaryMax}
		}
		if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
			job.PostedAt = &t
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
