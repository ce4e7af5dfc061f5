// Package llm wraps the generative model API used for entity extraction.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no usable output.
var ErrEmptyResponse = errors.New("llm: model returned no content")

// Client generates structured JSON from a system prompt and user input.
type Client interface {
	// GenerateJSON sends the prompts to the given model in JSON mode and
	// returns the raw JSON produced by the model.
	GenerateJSON(ctx context.Context, model, system, user string) (json.RawMessage, error)
}
