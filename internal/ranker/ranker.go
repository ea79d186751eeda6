package ranker

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/amishk599/autoapply/internal/model"
)

// neutralScore is returned by FallbackScore when either skill set is empty.
const neutralScore = 0.5

// Ranker scores postings against a profile and writes cover letters. The
// text generator is optional; every failure falls back to a deterministic
// computation, so Score and CoverLetter never fail.
type Ranker struct {
	gen    model.TextGenerator
	logger *slog.Logger
}

// New returns a Ranker. gen may be nil, in which case only the fallbacks run.
func New(gen model.TextGenerator, logger *slog.Logger) *Ranker {
	return &Ranker{gen: gen, logger: logger}
}

// Score returns a match score in [0, 1].
func (r *Ranker) Score(ctx context.Context, profile model.UserProfile, job model.JobPosting) float64 {
	if r.gen == nil {
		return FallbackScore(profile, job)
	}
	s, err := r.gen.Score(ctx, profile, job)
	if err != nil || math.IsNaN(s) || math.IsInf(s, 0) {
		r.logger.Warn("text generation scoring failed, using skill overlap",
			"company", job.Company,
			"title", job.Title,
			"error", err,
		)
		return FallbackScore(profile, job)
	}
	return clamp(s)
}

// Rank scores every posting, keeps those at or above minScore, and orders
// them by descending score. Postings with equal scores keep their input order.
func (r *Ranker) Rank(ctx context.Context, profile model.UserProfile, jobs []model.JobPosting, minScore float64) []model.ScoredJob {
	scored := make([]model.ScoredJob, 0, len(jobs))
	for _, j := range jobs {
		s := r.Score(ctx, profile, j)
		r.logger.Debug("scored job", "company", j.Company, "title", j.Title, "score", s)
		if s < minScore {
			continue
		}
		scored = append(scored, model.ScoredJob{Job: j, Score: s})
	}
	slices.SortStableFunc(scored, func(a, b model.ScoredJob) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return scored
}

// CoverLetter returns a non-empty cover letter for the job.
func (r *Ranker) CoverLetter(ctx context.Context, profile model.UserProfile, job model.JobPosting) string {
	if r.gen == nil {
		return FallbackCoverLetter(profile, job)
	}
	letter, err := r.gen.WriteCoverLetter(ctx, profile, job)
	if err != nil || strings.TrimSpace(letter) == "" {
		r.logger.Warn("cover letter generation failed, using template",
			"company", job.Company,
			"title", job.Title,
			"error", err,
		)
		return FallbackCoverLetter(profile, job)
	}
	return strings.TrimSpace(letter)
}

// FallbackScore is the Jaccard similarity between the profile's skills and
// the job's requirement set, compared case-insensitively. It returns 0.5 when
// either set is empty.
func FallbackScore(profile model.UserProfile, job model.JobPosting) float64 {
	have := skillSet(profile.Skills)
	need := skillSet(job.Skills)
	if len(have) == 0 || len(need) == 0 {
		return neutralScore
	}

	inter := 0
	for s := range have {
		if _, ok := need[s]; ok {
			inter++
		}
	}
	union := len(have) + len(need) - inter
	return float64(inter) / float64(union)
}

func skillSet(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func clamp(s float64) float64 {
	return math.Max(0, math.Min(1, s))
}
