package annotation

import (
	"html"
	"strings"
)

// RenderHTML converts a segment sequence into an escaped HTML fragment. The
// segments are the only source of structure: every piece of text, including
// extracted clinical text, passes through escaping so it cannot inject
// markup.
func RenderHTML(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Kind {
		case SegmentAnnotated:
			b.WriteString(`<mark class="`)
			b.WriteString(s.Style)
			b.WriteString(`" title="`)
			b.WriteString(s.Tooltip)
			b.WriteString(`">`)
			b.WriteString(html.EscapeString(s.Text))
			b.WriteString(`</mark>`)
		case SegmentPlaceholder:
			b.WriteString(`<p class="placeholder">`)
			b.WriteString(html.EscapeString(s.Text))
			b.WriteString(`</p>`)
		default:
			b.WriteString(html.EscapeString(s.Text))
		}
	}
	return b.String()
}

// RenderPlainHTML renders the source text as a monospaced full-text block.
// Used as the fallback when a nested result yields no highlightable terms.
func RenderPlainHTML(source string) string {
	return `<pre class="note-text">` + html.EscapeString(source) + `</pre>`
}

// HasAnnotations reports whether any segment carries a match.
func HasAnnotations(segments []Segment) bool {
	for _, s := range segments {
		if s.Kind == SegmentAnnotated {
			return true
		}
	}
	return false
}
