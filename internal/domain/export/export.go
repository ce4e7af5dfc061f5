// Package export reproduces the structured extraction payload as a named,
// dated JSON artifact. Exports carry the payload exactly as received, never
// the rendered segments, so export/import is a lossless round trip.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medex/medex/internal/domain/result"
)

// Filename returns the artifact name for a result kind on the given date:
// medical-entities-<YYYY-MM-DD>.json for the flat schema,
// uscdi-data-<YYYY-MM-DD>.json for the nested one.
func Filename(kind result.Kind, now time.Time) string {
	tag := "medical-entities"
	if kind == result.KindNested {
		tag = "uscdi-data"
	}
	return fmt.Sprintf("%s-%s.json", tag, now.Format("2006-01-02"))
}

// Marshal pretty-prints the retained payload bytes. No re-derivation: the
// output is the structured data exactly as the extraction returned it.
func Marshal(res *result.Result) ([]byte, error) {
	if res == nil || len(res.Payload()) == 0 {
		return nil, fmt.Errorf("no structured result to export")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, res.Payload(), "", "  "); err != nil {
		return nil, fmt.Errorf("format export payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Import re-parses an exported artifact of a known kind. Together with
// Marshal this closes the round trip: aggregating an imported export yields
// the same category tree as aggregating the original result.
func Import(kind result.Kind, data []byte) (*result.Result, error) {
	return result.ParsePayload(kind, json.RawMessage(data))
}
