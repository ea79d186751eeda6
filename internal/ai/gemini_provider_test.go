package ai

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

// fakeModels stands in for *genai.Models.
type fakeModels struct {
	resp      *genai.GenerateContentResponse
	err       error
	gotModel  string
	gotConfig *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotConfig = cfg
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: s}}}},
		},
	}
}

func TestGeminiComplete_Success(t *testing.T) {
	fm := &fakeModels{resp: textResponse("0.6")}
	p := &GeminiProvider{models: fm, model: "gemini-2.0-flash"}

	got, err := p.Complete(context.Background(), CompletionRequest{System: "sys", Prompt: "score", Temperature: 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0.6" {
		t.Errorf("got %q", got)
	}
	if fm.gotModel != "gemini-2.0-flash" {
		t.Errorf("model = %q", fm.gotModel)
	}
	if fm.gotConfig.SystemInstruction == nil {
		t.Error("expected system instruction")
	}
	if fm.gotConfig.Temperature == nil || *fm.gotConfig.Temperature != float32(0.3) {
		t.Errorf("unexpected temperature: %v", fm.gotConfig.Temperature)
	}
}

func TestGeminiComplete_Error(t *testing.T) {
	p := &GeminiProvider{models: &fakeModels{err: errors.New("quota")}, model: "m"}
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGeminiComplete_EmptyText(t *testing.T) {
	p := &GeminiProvider{models: &fakeModels{resp: &genai.GenerateContentResponse{}}, model: "m"}
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty response")
	}
}
