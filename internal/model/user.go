package model

// ContactFields are the applicant's contact details sent with every submission.
type ContactFields struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
	Phone string `json:"phone,omitempty" yaml:"phone"`
}

// UserProfile describes the applicant. Only Skills is required for
// fallback scoring; everything else is passed through to text generation.
type UserProfile struct {
	ContactFields `yaml:",inline"`
	Location      string            `json:"location,omitempty" yaml:"location"`
	Headline      string            `json:"headline,omitempty" yaml:"headline"`
	Experience    string            `json:"experience,omitempty" yaml:"experience"`
	Skills        []string          `json:"skills" yaml:"skills"`
	Extra         map[string]string `json:"extra,omitempty" yaml:"extra"`
}

// UserRegistration is everything the orchestrator needs to run cycles for a user.
type UserRegistration struct {
	UserID        string
	AuthToken     string
	Profile       UserProfile
	SearchQueries []string
	Location      string // search location, empty means the configured default
}
