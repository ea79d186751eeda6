package model

import (
	"context"
	"strings"
	"time"
)

// Source identifies the job board a posting was discovered on.
type Source string

const (
	SourceAdzuna     Source = "adzuna"
	SourceRemoteOK   Source = "remoteok"
	SourceGreenhouse Source = "greenhouse"
	SourceLever      Source = "lever"
)

// Salary is an optional advertised pay range.
type Salary struct {
	Min      float64
	Max      float64
	Currency string
}

// JobPosting is the unified representation of an open role from any source.
type JobPosting struct {
	ID          string     // source-specific identifier
	Title       string     // job title as advertised
	Company     string     // hiring company
	Location    string     // free-form location string
	Description string     // plain-text description
	URL         string     // link to the posting
	Salary      *Salary    // nullable
	Skills      []string   // requirement set, may be empty
	PostedAt    *time.Time // nullable (not all sources provide this)
	Source      Source
}

// IdentityKey returns the exact identity of a posting: title and company
// joined by an underscore. Two postings with the same key are the same job.
func (j JobPosting) IdentityKey() string {
	return j.Title + "_" + j.Company
}

// NormalizedKey is IdentityKey with surrounding whitespace trimmed, inner
// whitespace collapsed and letters folded to lower case, so that
// "Go Engineer" at "Acme" and "go  engineer" at "ACME " collide.
func (j JobPosting) NormalizedKey() string {
	return normalize(j.Title) + "_" + normalize(j.Company)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ScoredJob pairs a posting with its match score in [0, 1].
type ScoredJob struct {
	Job   JobPosting
	Score float64
}

// JobSource searches one job board for postings matching a query.
type JobSource interface {
	Name() string
	Fetch(ctx context.Context, query, location string, limit int) ([]JobPosting, error)
}

// FetchResult is the outcome of one (source, query) fetch. Failures are
// carried as values so one failing source never hides the others.
type FetchResult struct {
	Source   string
	Query    string
	Postings []JobPosting
	Err      error
}
