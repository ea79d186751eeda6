package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

const greenhousePayload = `{
	"jobs": [
		{
			"id": 12345,
			"title": "Backend Engineer",
			"location": {"name": "Remote, US"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/12345",
			"updated_at": "2026-02-13T10:00:00Z",
			"content": "&lt;p&gt;Build Go services.&lt;/p&gt;"
		},
		{
			"id": 67890,
			"title": "Product Designer",
			"location": {"name": "Remote, US"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/67890",
			"updated_at": "2026-02-13T11:30:00Z"
		},
		{
			"id": 11111,
			"title": "Backend Engineer, Payments",
			"location": {"name": "London, UK"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/11111",
			"updated_at": "not-a-date"
		}
	]
}`

func TestGreenhouseFetch_FiltersByQueryAndLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/boards/acme/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("content") != "true" {
			t.Errorf("expected content=true")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(greenhousePayload))
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "acme", "Acme Corp")

	jobs, err := a.Fetch(context.Background(), "backend", "remote", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	j := jobs[0]
	if j.ID != "12345" || j.Company != "Acme Corp" || j.Title != "Backend Engineer" {
		t.Errorf("unexpected job: %+v", j)
	}
	if j.Source != model.SourceGreenhouse {
		t.Errorf("expected source greenhouse, got %s", j.Source)
	}
	if j.Description != "Build Go services." {
		t.Errorf("expected plain-text description, got %q", j.Description)
	}
	want := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	if j.PostedAt == nil || !j.PostedAt.Equal(want) {
		t.Errorf("expected PostedAt %v, got %v", want, j.PostedAt)
	}
}

func TestGreenhouseFetch_EmptyQueryReturnsBoardUpToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(greenhousePayload))
	}))
	defer srv.Close()

	jobs, err := newTestAdapter(srv, "acme", "Acme").Fetch(context.Background(), "", "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "12345" || jobs[1].ID != "67890" {
		t.Errorf("expected board order preserved, got %s, %s", jobs[0].ID, jobs[1].ID)
	}
}

func TestGreenhouseFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestAdapter(srv, "acme", "Acme").Fetch(context.Background(), "go", "", 10)
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || httpErr.RetryAfter != 30*time.Second {
		t.Errorf("unexpected HTTPError: %+v", httpErr)
	}
}

func TestGreenhouseFetch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobs": [`))
	}))
	defer srv.Close()

	if _, err := newTestAdapter(srv, "acme", "Acme").Fetch(context.Background(), "", "", 10); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "double-encoded HTML from Greenhouse API",
			input: "This is the job description. &lt;p&gt;Any HTML included.&lt;/p&gt;",
			want:  "This is the job description. Any HTML included.",
		},
		{
			name:  "typical job description with nested tags and whitespace",
			input: "&lt;p&gt;We are hiring.&lt;/p&gt;\n&lt;ul&gt;\n  &lt;li&gt;Write code&lt;/li&gt;\n  &lt;li&gt;Review PRs&lt;/li&gt;\n&lt;/ul&gt;",
			want:  "We are hiring. Write code Review PRs",
		},
		{
			name:  "plain text with no HTML",
			input: "No tags here.",
			want:  "No tags here.",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := extractText(tc.input)
			if got != tc.want {
				t.Errorf("extractText(%q)\n got  %q\n want %q", tc.input, got, tc.want)
			}
		})
	}
}

// --- helpers ---

// roundTripFunc adapts a function into an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// redirectClient sends every request to srv regardless of host.
func redirectClient(srv *httptest.Server) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = "http"
			req.URL.Host = srv.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(req)
		}),
	}
}

// newTestAdapter creates a GreenhouseAdapter wired to a test server.
func newTestAdapter(srv *httptest.Server, token, company string) *GreenhouseAdapter {
	return NewGreenhouseAdapter(token, company, redirectClient(srv))
}
