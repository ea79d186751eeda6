package filter

import (
	"testing"

	"github.com/amishk599/autoapply/internal/model"
)

func job(title, location string) model.JobPosting {
	return model.JobPosting{Title: title, Location: location}
}

func TestQueryFilter_Match(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		location  string
		job       model.JobPosting
		wantMatch bool
	}{
		{
			name:      "matches both query and location",
			query:     "backend engineer",
			location:  "Remote",
			job:       job("Senior Backend Engineer", "Remote - US"),
			wantMatch: true,
		},
		{
			name:      "query match but location miss",
			query:     "backend",
			location:  "Remote",
			job:       job("Backend Engineer", "London, UK"),
			wantMatch: false,
		},
		{
			name:      "case insensitive matching",
			query:     "PYTHON",
			location:  "us",
			job:       job("Python Developer", "US Remote"),
			wantMatch: true,
		},
		{
			name:      "every term must appear",
			query:     "python developer",
			location:  "",
			job:       job("Python Data Scientist", "Remote"),
			wantMatch: false,
		},
		{
			name:      "term found in description",
			query:     "golang",
			location:  "",
			job:       model.JobPosting{Title: "Backend Engineer", Description: "We write Golang services"},
			wantMatch: true,
		},
		{
			name:      "any of several locations",
			query:     "",
			location:  "Berlin, Remote",
			job:       job("Anything", "Berlin, DE"),
			wantMatch: true,
		},
		{
			name:      "empty query and location pass all",
			query:     "",
			location:  "",
			job:       job("Any Role", "Anywhere"),
			wantMatch: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewQueryFilter(tt.query, tt.location)
			if got := f.Match(tt.job); got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestQueryFilter_ApplyRespectsLimit(t *testing.T) {
	jobs := []model.JobPosting{
		job("Go Engineer", "Remote"),
		job("Java Engineer", "Remote"),
		job("Go Platform Engineer", "Remote"),
		job("Go SRE", "Remote"),
	}
	got := NewQueryFilter("go", "remote").Apply(jobs, 2)
	if len(got) != 2 || got[0].Title != "Go Engineer" || got[1].Title != "Go Platform Engineer" {
		t.Errorf("unexpected result: %+v", got)
	}
}
