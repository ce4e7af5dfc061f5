package annotation

// Candidate is one located occurrence of a mention in the source text.
// Invariant: 0 <= Start < End <= len(source). Discovery order is the
// candidate's position in the slice the locator produced.
type Candidate struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Category   string `json:"category"`
	Identifier string `json:"identifier,omitempty"`
}

// SegmentKind discriminates rendered segments.
type SegmentKind string

const (
	// SegmentLiteral is a verbatim span of the source text.
	SegmentLiteral SegmentKind = "literal"
	// SegmentAnnotated wraps one accepted match.
	SegmentAnnotated SegmentKind = "annotated"
	// SegmentPlaceholder replaces the whole view when no source text exists.
	SegmentPlaceholder SegmentKind = "placeholder"
)

// Segment is a contiguous piece of the rendered output. An ordered literal/
// annotated sequence covers the source text exactly once; concatenating the
// Text of every non-placeholder segment reproduces it byte for byte.
type Segment struct {
	Kind       SegmentKind `json:"kind"`
	Text       string      `json:"text"`
	Category   string      `json:"category,omitempty"`
	Identifier string      `json:"identifier,omitempty"`
	Style      string      `json:"style,omitempty"`
	Tooltip    string      `json:"tooltip,omitempty"`
}

// Mention is one resolved mention string to locate in the source text.
type Mention struct {
	Text       string
	Category   string
	Identifier string
}
