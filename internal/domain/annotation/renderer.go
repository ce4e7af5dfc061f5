package annotation

import (
	"html"
	"strings"

	"github.com/medex/medex/internal/domain/result"
)

// PlaceholderText is emitted as the single segment when no source text is
// available at render time.
const PlaceholderText = "No source text available. Paste or upload a clinical note and run an extraction."

// Render walks the source text and the accepted, start-ordered candidate list
// left to right and produces the ordered segment sequence. With no accepted
// candidates and non-empty text the whole text becomes one literal segment;
// with empty text a single placeholder segment is emitted instead.
func Render(source string, accepted []Candidate) []Segment {
	if source == "" {
		return []Segment{{Kind: SegmentPlaceholder, Text: PlaceholderText}}
	}

	segments := make([]Segment, 0, 2*len(accepted)+1)
	currentPos := 0
	for _, c := range accepted {
		if c.Start < currentPos || c.End > len(source) || c.Start >= c.End {
			continue
		}
		if c.Start > currentPos {
			segments = append(segments, Segment{
				Kind: SegmentLiteral,
				Text: source[currentPos:c.Start],
			})
		}
		segments = append(segments, Segment{
			Kind:       SegmentAnnotated,
			Text:       source[c.Start:c.End],
			Category:   c.Category,
			Identifier: c.Identifier,
			Style:      StyleKey(c.Category),
			Tooltip:    html.EscapeString(TooltipLabel(c.Category, c.Identifier)),
		})
		currentPos = c.End
	}
	if currentPos < len(source) {
		segments = append(segments, Segment{
			Kind: SegmentLiteral,
			Text: source[currentPos:],
		})
	}
	return segments
}

// Annotate runs the full pipeline for one document: mention resolution,
// location, overlap resolution, rendering.
func Annotate(res *result.Result, source string) []Segment {
	mentions := GatherMentions(res)
	candidates := Locate(source, mentions)
	accepted := Resolve(candidates)
	return Render(source, accepted)
}

// TooltipLabel builds the human-readable label for an annotated span: the
// category key with underscores replaced by spaces, suffixed with the coded
// reference when one is present.
func TooltipLabel(category, identifier string) string {
	label := strings.ReplaceAll(category, "_", " ")
	if identifier != "" {
		label += " (CUI: " + identifier + ")"
	}
	return label
}

// StyleKey derives a deterministic, markup-safe style class from a category
// key. Anything outside [a-z0-9_-] is dropped so that model-supplied keys
// cannot alter the rendered structure.
func StyleKey(category string) string {
	var b strings.Builder
	b.WriteString("hl-")
	for _, r := range strings.ToLower(category) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
