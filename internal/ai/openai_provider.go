package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/amishk599/autoapply/internal/model"
)

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	model  string
	client *resty.Client
}

// NewOpenAIProvider creates a provider targeting baseURL (e.g. https://api.openai.com/v1).
func NewOpenAIProvider(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIProvider {
	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &OpenAIProvider{model: model, client: client}
}

// chatRequest mirrors the OpenAI /v1/chat/completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends the request and returns the first choice's message content.
// Non-200 responses come back as *model.HTTPError.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       p.model,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return "", &model.HTTPError{
			StatusCode: resp.StatusCode(),
			RetryAfter: model.ParseRetryAfter(resp.Header().Get("Retry-After")),
			Err:        fmt.Errorf("llm returned %q", gjson.GetBytes(body, "error.message").String()),
		}
	}

	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return "", fmt.Errorf("llm error (%s): %s", gjson.GetBytes(body, "error.type").String(), msg.String())
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("llm returned no choices")
	}
	return content.String(), nil
}
