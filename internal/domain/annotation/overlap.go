package annotation

import "sort"

// Resolve reduces the combined candidate set to a sorted, non-overlapping
// covering set. Candidates are sorted by start with a stable sort, so ties
// keep discovery order, then swept once: a candidate is accepted iff it
// starts at or after the end of the last accepted one. Greedy leftmost
// interval scheduling; earlier-starting, earlier-discovered matches win.
func Resolve(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	accepted := make([]Candidate, 0, len(sorted))
	lastAcceptedEnd := -1
	for _, c := range sorted {
		if c.Start >= lastAcceptedEnd {
			accepted = append(accepted, c)
			lastAcceptedEnd = c.End
		}
	}
	return accepted
}
