package ranker

import (
	"fmt"
	"strings"

	"github.com/amishk599/autoapply/internal/model"
)

const fallbackLetter = `Dear Hiring Manager,

I am writing to express my interest in the %s position at %s.

With expertise in %s, I believe I would be a valuable addition to your team. My experience includes building reliable software and working with cross-functional teams to deliver high-quality results.

I am particularly excited about the opportunity to contribute to %s and would welcome the chance to discuss how my skills and experience align with your needs.

Thank you for considering my application. I look forward to hearing from you.

Best regards,
%s`

// FallbackCoverLetter fills a fixed template with the applicant's name, up
// to three skills, and the job's title and company.
func FallbackCoverLetter(profile model.UserProfile, job model.JobPosting) string {
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = "Professional"
	}

	title := orDefault(job.Title, "open")
	company := orDefault(job.Company, "your company")

	skills := profile.Skills
	if len(skills) > 3 {
		skills = skills[:3]
	}
	expertise := strings.Join(skills, ", ")
	if expertise == "" {
		expertise = "software development"
	}

	return fmt.Sprintf(fallbackLetter, title, company, expertise, company, name)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
