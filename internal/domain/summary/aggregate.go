// Package summary groups structured extraction results into a display-ready
// category tree. All text inserted into a rendered block is HTML-escaped
// here, so extracted clinical text can never alter the rendered structure.
package summary

import (
	"bytes"
	"encoding/json"
	"html"

	"github.com/medex/medex/internal/domain/result"
)

// Line is one escaped, labeled line of a flat-mode detail block.
type Line struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Block is one rendered detail block: labeled lines in flat mode, a
// pretty-printed structural dump in nested mode.
type Block struct {
	Lines []Line `json:"lines,omitempty"`
	Dump  string `json:"dump,omitempty"`
}

// Group is one category of the summary tree. Produced fresh per render.
type Group struct {
	Key     string  `json:"key"`
	Display string  `json:"display"`
	Icon    string  `json:"icon"`
	Count   int     `json:"count"`
	Blocks  []Block `json:"blocks"`
}

// flatLines defines the labeled fields a flat detail block renders, in order.
var flatLines = []struct {
	label string
	field string
}{
	{"Text", "text"},
	{"CUI", "cui"},
	{"Value", "value"},
	{"Context", "context"},
}

// Aggregate builds the category tree for the active result variant.
func Aggregate(res *result.Result) []Group {
	if res == nil {
		return nil
	}
	if res.Kind == result.KindNested {
		return aggregateNested(res)
	}
	return aggregateFlat(res)
}

// aggregateFlat iterates the fixed category registry in order; keys the
// registry does not know are ignored in this mode.
func aggregateFlat(res *result.Result) []Group {
	var groups []Group
	for _, cat := range result.FlatCategories {
		records := res.Flat[cat.Key]
		if len(records) == 0 {
			continue
		}
		g := Group{
			Key:     cat.Key,
			Display: cat.Display,
			Icon:    cat.Icon,
			Count:   len(records),
		}
		for _, rec := range records {
			var block Block
			for _, fl := range flatLines {
				v, ok := rec.String(fl.field)
				if !ok || v == "" {
					continue
				}
				block.Lines = append(block.Lines, Line{
					Label: fl.label,
					Value: html.EscapeString(v),
				})
			}
			g.Blocks = append(g.Blocks, block)
		}
		groups = append(groups, g)
	}
	return groups
}

// aggregateNested iterates the result's own keys in document order, skipping
// internal markers and empty values. Unknown keys get a synthesized display
// name and the default icon.
func aggregateNested(res *result.Result) []Group {
	var groups []Group
	for _, entry := range res.Classes {
		if entry.Internal() || entry.Empty() {
			continue
		}
		g := Group{Key: entry.Key, Count: len(entry.Records)}
		if cat, ok := result.LookupNested(entry.Key); ok {
			g.Display = cat.Display
			g.Icon = cat.Icon
		} else {
			g.Display = result.SynthesizeDisplay(entry.Key)
			g.Icon = result.DefaultIcon
		}
		for _, rec := range entry.Records {
			g.Blocks = append(g.Blocks, Block{Dump: dump(rec.Raw())})
		}
		groups = append(groups, g)
	}
	return groups
}

// dump pretty-prints a raw JSON value and escapes it for insertion.
func dump(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return html.EscapeString(string(raw))
	}
	return html.EscapeString(buf.String())
}
