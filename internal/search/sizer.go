package search

// adaptiveSize shrinks the returned set when the top score of the final
// ordering is very high, minimizing downstream context size. The
// staircase is deterministic and applies identically whether the active
// score is fused or reranked:
//
//	top >= single threshold -> 1 result
//	top >= dual threshold   -> 2 results
//	otherwise               -> up to topK
func adaptiveSize(topScore float64, topK int, cfg Config) int {
	switch {
	case topScore >= cfg.SingleResultThreshold:
		return 1
	case topScore >= cfg.DualResultThreshold:
		return 2
	default:
		return topK
	}
}
