package filter

import (
	"strings"

	"github.com/amishk599/autoapply/internal/model"
)

// QueryFilter narrows a full job board down to postings that answer a search
// query. Boards like Greenhouse and Lever return every open role, so the
// query and location are applied here instead of server-side.
//
// Matching is case-insensitive. Every query term must appear in the title or
// the description; the location must contain any of the comma-separated
// location keywords. An empty query or location matches all.
type QueryFilter struct {
	terms     []string
	locations []string
}

// NewQueryFilter builds a filter from a free-text query and location.
func NewQueryFilter(query, location string) *QueryFilter {
	var locations []string
	for _, l := range strings.Split(location, ",") {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			locations = append(locations, l)
		}
	}
	return &QueryFilter{
		terms:     strings.Fields(strings.ToLower(query)),
		locations: locations,
	}
}

// Match reports whether job satisfies both the query and the location.
func (f *QueryFilter) Match(job model.JobPosting) bool {
	if len(f.terms) > 0 {
		text := strings.ToLower(job.Title + " " + job.Description)
		for _, term := range f.terms {
			if !strings.Contains(text, term) {
				return false
			}
		}
	}

	if len(f.locations) > 0 {
		locationLower := strings.ToLower(job.Location)
		matched := false
		for _, loc := range f.locations {
			if strings.Contains(locationLower, loc) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// Apply returns the matching postings, at most limit of them (limit <= 0 means no cap).
func (f *QueryFilter) Apply(jobs []model.JobPosting, limit int) []model.JobPosting {
	var out []model.JobPosting
	for _, j := range jobs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if f.Match(j) {
			out = append(out, j)
		}
	}
	return out
}
