package annotation

import "strings"

// Locate scans the source text for every case-insensitive literal occurrence
// of each mention. The cursor advances by the full match length after every
// hit, so overlapping self-repeats of a mention are never counted beyond
// their true span and the scan always terminates. Mentions from different
// records are located independently; duplicates are reconciled later by the
// overlap resolver, not here.
func Locate(source string, mentions []Mention) []Candidate {
	var out []Candidate
	lowerSrc := strings.ToLower(source)
	// ToLower can change byte length for a handful of Unicode code points;
	// the index fast path is only valid when it does not.
	fast := len(lowerSrc) == len(source)

	for _, m := range mentions {
		if m.Text == "" {
			continue
		}
		lowerMention := strings.ToLower(m.Text)
		useFast := fast && len(lowerMention) == len(m.Text)

		cur := 0
		for cur+len(m.Text) <= len(source) {
			idx := -1
			if useFast {
				if rel := strings.Index(lowerSrc[cur:], lowerMention); rel >= 0 {
					idx = cur + rel
				}
			} else {
				idx = indexFold(source, m.Text, cur)
			}
			if idx < 0 {
				break
			}
			out = append(out, Candidate{
				Start:      idx,
				End:        idx + len(m.Text),
				Category:   m.Category,
				Identifier: m.Identifier,
			})
			cur = idx + len(m.Text)
		}
	}
	return out
}

// indexFold returns the first case-insensitive occurrence of sub in s at or
// after from, comparing equal-length byte windows.
func indexFold(s, sub string, from int) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
