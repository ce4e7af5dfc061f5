package annotation

import (
	"strings"

	"github.com/medex/medex/internal/domain/result"
)

// internalPrefix marks fields and keys reserved for internal use; they never
// resolve as mentions.
const internalPrefix = "_"

// fieldPriority lists candidate mention fields per category or data class, in
// priority order. The first non-empty string-valued field wins. Classes not
// listed here fall back to defaultPriority.
var fieldPriority = map[string][]string{
	// Flat schema categories carry the mention in "text".
	"disorders":      {"text", "name"},
	"signs_symptoms": {"text", "name"},
	"anatomy":        {"text", "name"},
	"lab_results":    {"text", "name", "test"},
	"devices":        {"text", "name", "device"},
	"organisms":      {"text", "name"},
	"substances":     {"text", "name", "substance"},
	"temporal":       {"text", "name"},

	// USCDI data classes name their primary term differently per class.
	"problems":                   {"name", "problem", "condition", "diagnosis", "text", "description"},
	"medications":                {"name", "medication", "drug", "text", "description"},
	"allergies_and_intolerances": {"name", "substance", "allergen", "text"},
	"procedures":                 {"name", "procedure", "text", "description"},
	"laboratory":                 {"name", "test", "measurement", "text"},
	"vital_signs":                {"name", "measurement", "type", "text"},
	"clinical_tests":             {"name", "test", "text"},
	"diagnostic_imaging":         {"name", "imaging_type", "type", "text"},
	"immunizations":              {"name", "vaccine", "text"},
	"medical_devices":            {"name", "device", "text"},
	"family_health_history":      {"name", "condition", "text"},
}

var defaultPriority = []string{"name", "text", "description", "term"}

// ResolveMention returns the representative mention string for one record of the
// given category or class. An empty return means the record has no
// highlightable mention; it is not an error and the record still appears in
// the summary.
func ResolveMention(rec result.Record, class string) string {
	text, _ := ResolveMentionField(rec, class)
	return text
}

// ResolveMentionField works like ResolveMention but also reports which field
// supplied the mention.
func ResolveMentionField(rec result.Record, class string) (string, string) {
	priority, ok := fieldPriority[class]
	if !ok {
		priority = defaultPriority
	}
	for _, field := range priority {
		if v, ok := rec.String(field); ok && strings.TrimSpace(v) != "" {
			return v, field
		}
	}
	// Fallback: first string-valued field, in document order, longer than
	// two characters and not an internal-use marker.
	for _, f := range rec.Fields() {
		if strings.HasPrefix(f.Key, internalPrefix) {
			continue
		}
		v, ok := rec.String(f.Key)
		if !ok {
			continue
		}
		if len(strings.TrimSpace(v)) > 2 {
			return v, f.Key
		}
	}
	return "", ""
}

// identifierField names the coded-reference field per schema kind.
func identifierField(kind result.Kind) string {
	if kind == result.KindNested {
		return "umls_cui"
	}
	return "cui"
}

// GatherMentions applies mention resolution to every record of every
// category or class, in discovery order: category iteration order first,
// then per-category record order. Records without a mention are skipped.
func GatherMentions(res *result.Result) []Mention {
	if res == nil {
		return nil
	}
	var out []Mention
	appendRecord := func(rec result.Record, key string) {
		text := ResolveMention(rec, key)
		if text == "" {
			return
		}
		m := Mention{Text: text, Category: key}
		if id, ok := rec.String(identifierField(res.Kind)); ok {
			m.Identifier = id
		}
		out = append(out, m)
	}
	switch res.Kind {
	case result.KindFlat:
		for _, cat := range result.FlatCategories {
			for _, rec := range res.Flat[cat.Key] {
				appendRecord(rec, cat.Key)
			}
		}
	case result.KindNested:
		for _, entry := range res.Classes {
			if entry.Internal() || entry.Empty() {
				continue
			}
			for _, rec := range entry.Records {
				if !rec.IsObject() {
					continue
				}
				appendRecord(rec, entry.Key)
			}
		}
	}
	return out
}
