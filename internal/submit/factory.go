package submit

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/amishk599/autoapply/internal/model"
)

// Factory opens a submission channel for a registered user.
type Factory func(reg model.UserRegistration) (model.SubmissionChannel, error)

// NewFactory returns a Factory for the configured channel type:
// "log" (default) or "http".
func NewFactory(kind, baseURL string, httpClient *http.Client, logger *slog.Logger) (Factory, error) {
	switch kind {
	case "", "log":
		return func(reg model.UserRegistration) (model.SubmissionChannel, error) {
			return NewLogChannel(reg.UserID, logger), nil
		}, nil
	case "http":
		if baseURL == "" {
			return nil, fmt.Errorf("http submission channel requires a base url")
		}
		return func(reg model.UserRegistration) (model.SubmissionChannel, error) {
			if reg.AuthToken == "" {
				return nil, fmt.Errorf("user %s: auth token required for http submission", reg.UserID)
			}
			return NewHTTPChannel(reg.UserID, baseURL, reg.AuthToken, httpClient, logger), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown submission channel type %q", kind)
	}
}
