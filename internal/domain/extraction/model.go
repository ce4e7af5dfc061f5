package extraction

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is the body of the text extraction endpoints.
type Request struct {
	MedicalNote string `json:"medical_note"`
	Model       string `json:"model"`
}

// Response is the envelope returned by the flat extraction endpoints.
type Response struct {
	Success       bool            `json:"success"`
	Entities      json.RawMessage `json:"entities,omitempty"`
	Error         string          `json:"error,omitempty"`
	TotalEntities int             `json:"total_entities,omitempty"`
	OriginalText  string          `json:"original_text,omitempty"`
}

// USCDIResponse is the envelope returned by the nested extraction endpoints.
type USCDIResponse struct {
	Success          bool            `json:"success"`
	USCDIData        json.RawMessage `json:"uscdi_data,omitempty"`
	Error            string          `json:"error,omitempty"`
	DataClassesCount int             `json:"data_classes_count,omitempty"`
	OriginalText     string          `json:"original_text,omitempty"`
}

// ClassResponse is returned by the single-class extraction endpoint.
type ClassResponse struct {
	Success   bool            `json:"success"`
	DataClass string          `json:"data_class"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Run is one persisted extraction, maps to the extraction_runs table.
type Run struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Kind        string          `db:"kind" json:"kind"`
	Model       string          `db:"model" json:"model"`
	NoteChars   int             `db:"note_chars" json:"note_chars"`
	EntityCount int             `db:"entity_count" json:"entity_count"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// RunSummary is the list view of a Run, without the payload.
type RunSummary struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Model       string    `json:"model"`
	NoteChars   int       `json:"note_chars"`
	EntityCount int       `json:"entity_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary strips the payload for listing.
func (r *Run) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		Kind:        r.Kind,
		Model:       r.Model,
		NoteChars:   r.NoteChars,
		EntityCount: r.EntityCount,
		CreatedAt:   r.CreatedAt,
	}
}

// ModelInfo describes one selectable extraction model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AvailableModels lists the models offered on the models endpoint.
var AvailableModels = []ModelInfo{
	{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash (Recommended)", Description: "Fast and capable"},
	{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Description: "Most capable model"},
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Description: "Cost-effective"},
	{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", Description: "Fastest, lowest cost"},
}

// IsKnownModel reports whether id is in the offered model list.
func IsKnownModel(id string) bool {
	for _, m := range AvailableModels {
		if m.ID == id {
			return true
		}
	}
	return false
}
