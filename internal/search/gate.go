package search

// applyGate filters fused candidates below the score threshold. An
// empty survivor list is the explicit low-confidence signal consumed by
// the escalation decision upstream, not an error.
func applyGate(candidates []ScoredCandidate, threshold float64) []ScoredCandidate {
	kept := candidates[:0]
	for _, c := range candidates {
		if c.FusedScore >= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}
