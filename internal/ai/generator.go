package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/tidwall/gjson"

	"github.com/amishk599/autoapply/internal/model"
)

const (
	scoreSystemPrompt  = "You are an expert job matching assistant. Rate how well a job matches a candidate profile from 0.0 to 1.0."
	letterSystemPrompt = "You are an expert cover letter writer. Write compelling, personalised cover letters."
)

// Ensure LLMTextGenerator implements model.TextGenerator.
var _ model.TextGenerator = (*LLMTextGenerator)(nil)

// LLMTextGenerator implements model.TextGenerator on top of an LLMProvider.
// Any failure is returned as an error; fallbacks are the caller's concern.
type LLMTextGenerator struct {
	provider LLMProvider
}

// NewLLMTextGenerator creates a generator backed by provider.
func NewLLMTextGenerator(provider LLMProvider) *LLMTextGenerator {
	return &LLMTextGenerator{provider: provider}
}

// Score asks the LLM for a match score. The raw score is returned unclamped.
func (g *LLMTextGenerator) Score(ctx context.Context, profile model.UserProfile, job model.JobPosting) (float64, error) {
	prompt, err := render(MatchScoreTemplate, profile, job)
	if err != nil {
		return 0, err
	}
	raw, err := g.provider.Complete(ctx, CompletionRequest{
		System:      scoreSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		return 0, fmt.Errorf("llm complete: %w", err)
	}
	return parseScore(raw)
}

// WriteCoverLetter asks the LLM for a cover letter.
func (g *LLMTextGenerator) WriteCoverLetter(ctx context.Context, profile model.UserProfile, job model.JobPosting) (string, error) {
	prompt, err := render(CoverLetterTemplate, profile, job)
	if err != nil {
		return "", err
	}
	raw, err := g.provider.Complete(ctx, CompletionRequest{
		System:      letterSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("llm complete: %w", err)
	}
	letter := strings.TrimSpace(raw)
	if letter == "" {
		return "", fmt.Errorf("llm returned an empty cover letter")
	}
	return letter, nil
}

// parseScore accepts a bare number ("0.85") or a JSON object with a numeric
// "score" field.
func parseScore(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if gjson.Valid(raw) {
		parsed := gjson.Parse(raw)
		switch {
		case parsed.Type == gjson.Number:
			return parsed.Float(), nil
		case parsed.IsObject():
			if s := parsed.Get("score"); s.Type == gjson.Number {
				return s.Float(), nil
			}
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric score %q", raw)
	}
	return f, nil
}

// promptJob is the job as shown to the LLM.
type promptJob struct {
	Title        string        `json:"title"`
	Company      string        `json:"company"`
	Location     string        `json:"location,omitempty"`
	Description  string        `json:"description,omitempty"`
	Requirements []string      `json:"requirements,omitempty"`
	Salary       *model.Salary `json:"salary,omitempty"`
}

func render(tmpl *template.Template, profile model.UserProfile, job model.JobPosting) (string, error) {
	p, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	desc := job.Description
	if len(desc) > 4000 {
		desc = desc[:4000]
	}
	j, err := json.MarshalIndent(promptJob{
		Title:        job.Title,
		Company:      job.Company,
		Location:     job.Location,
		Description:  desc,
		Requirements: job.Skills,
		Salary:       job.Salary,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Profile, Job string }{string(p), string(j)}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
