package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/match_score.md
var matchScorePromptRaw string

//go:embed prompts/cover_letter.md
var coverLetterPromptRaw string

// Parsed once at package init; reused on every call.
var (
	MatchScoreTemplate  = template.Must(template.New("match_score").Parse(matchScorePromptRaw))
	CoverLetterTemplate = template.Must(template.New("cover_letter").Parse(coverLetterPromptRaw))
)
