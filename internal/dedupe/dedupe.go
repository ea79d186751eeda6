package dedupe

import "github.com/amishk599/autoapply/internal/model"

// Deduplicator removes postings that share an identity key, keeping the
// first occurrence and preserving input order.
type Deduplicator struct {
	normalize bool
}

// New returns a Deduplicator. With normalize set, keys are compared after
// whitespace collapsing and case folding; otherwise they must match exactly.
func New(normalize bool) *Deduplicator {
	return &Deduplicator{normalize: normalize}
}

// Key returns the identity key used for comparison.
func (d *Deduplicator) Key(job model.JobPosting) string {
	if d.normalize {
		return job.NormalizedKey()
	}
	return job.IdentityKey()
}

// Dedupe returns the postings with later duplicates dropped.
func (d *Deduplicator) Dedupe(jobs []model.JobPosting) []model.JobPosting {
	seen := make(map[string]struct{}, len(jobs))
	out := make([]model.JobPosting, 0, len(jobs))
	for _, j := range jobs {
		k := d.Key(j)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, j)
	}
	return out
}
