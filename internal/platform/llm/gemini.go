package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// extractionTemperature keeps entity extraction near-deterministic.
const extractionTemperature = float32(0.1)

// reasoningModelMarkers name model families that only support their default
// temperature. Requests to these models omit the temperature override.
var reasoningModelMarkers = []string{"o1", "o3-mini", "thinking"}

// Gemini is a Client backed by the official genai SDK.
type Gemini struct {
	cli *genai.Client
}

// NewGemini creates a Gemini client. The key may be empty, in which case the
// SDK falls back to its environment variables.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{cli: cli}, nil
}

// GenerateJSON asks the model for an application/json response and returns
// the raw bytes of the first candidate.
func (g *Gemini) GenerateJSON(ctx context.Context, model, system, user string) (json.RawMessage, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if usesAdjustableTemperature(model) {
		temp := extractionTemperature
		cfg.Temperature = &temp
	}

	resp, err := g.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: user}}}},
		cfg,
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return json.RawMessage(text), nil
}

func usesAdjustableTemperature(model string) bool {
	lower := strings.ToLower(model)
	for _, marker := range reasoningModelMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
