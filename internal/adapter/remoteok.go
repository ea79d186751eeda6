package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/filter"
	"github.com/amishk599/autoapply/internal/model"
)

const remoteOKURL = "https://remoteok.com/api"

// remoteOKJob is one entry of the RemoteOK feed. The first element of the
// feed is a legal notice with no id or position.
type remoteOKJob struct {
	ID          json.Number `json:"id"`
	Position    string      `json:"position"`
	Company     string      `json:"company"`
	Location    string      `json:"location"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	SalaryMin   float64     `json:"salary_min"`
	SalaryMax   float64     `json:"salary_max"`
	URL         string      `json:"url"`
	Date        string      `json:"date"`
}

// RemoteOKAdapter searches the RemoteOK feed. Tags become the skill set.
type RemoteOKAdapter struct {
	baseURL string
	client  *http.Client
}

// NewRemoteOKAdapter creates a RemoteOK adapter.
func NewRemoteOKAdapter(client *http.Client) *RemoteOKAdapter {
	return &RemoteOKAdapter{baseURL: remoteOKURL, client: client}
}

func (a *RemoteOKAdapter) Name() string { return string(model.SourceRemoteOK) }

// Fetch narrows the feed by the query's first term server-side, then
// applies the full query and location locally.
func (a *RemoteOKAdapter) Fetch(ctx context.Context, query, location string, limit int) ([]model.JobPosting, error) {
	reqURL := a.baseURL
	if terms := strings.Fields(strings.ToLower(query)); len(terms) > 0 {
		reqURL += "?tags=" + url.QueryEscape(terms[0])
	}

	var feed []remoteOKJob
	if err := getJSON(ctx, a.client, reqURL, a.Name(), &feed); err != nil {
		return nil, err
	}

	jobs := make([]model.JobPosting, 0, len(feed))
	for _, r := range feed {
		if r.ID == "" || r.Position == "" {
			continue
		}
		loc := r.Location
		if loc == "" {
			loc = "Remote"
		} else if !strings.Contains(strings.ToLower(loc), "remote") {
			loc = "Remote, " + loc
		}
		job := model.JobPosting{
			ID:          r.ID.String(),
			Title:       r.Position,
			Company:     r.Company,
			Location:    loc,
			Description: extractText(r.Description),
			URL:         r.URL,
			Skills:      r.Tags,
			Source:      model.SourceRemoteOK,
		}
		if r.SalaryMin > 0 || r.SalaryMax > 0 {
			job.Salary = &model.Salary{Min: r.SalaryMin, Max: r.SalaryMax, Currency: "USD"}
		}
		if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
			job.PostedAt = &t
		}
		jobs = append(jobs, job)
	}

	return filter.NewQueryFilter(query, location).Apply(jobs, limit), nil
}
