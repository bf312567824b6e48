package search

import (
	"math"
	"sort"
)

// fuseScores blends the vector similarity (primary signal) with a
// bounded lexical correction over the candidate window. The lexical
// score never rescues a candidate the vector stage ranked poorly; it
// only nudges candidates with strong exact-term matches (account
// numbers, product names) that embeddings under-weight.
//
// Per candidate:
//   - vectorScore > 0: boost = max(0, (lexical - pivot) * scale);
//     fused = min(vector + boost, 1).
//   - vectorScore == 0: fused = lexical (degenerate-vector fallback).
//
// A nil lexScores map means the lexical stage was unavailable; fused
// scores then equal the vector scores unchanged.
func fuseScores(candidates []ScoredCandidate, lexScores map[string]float64, cfg Config) []ScoredCandidate {
	for i := range candidates {
		c := &candidates[i]

		if lexScores == nil {
			c.FusedScore = c.VectorScore
			continue
		}

		lexical, scored := lexScores[c.ChunkID]
		c.LexicalScore = lexical
		c.LexicalScored = scored

		if c.VectorScore > 0 {
			boost := math.Max(0, (lexical-cfg.BoostPivot)*cfg.BoostScale)
			c.FusedScore = math.Min(c.VectorScore+boost, 1.0)
		} else {
			c.FusedScore = lexical
		}
	}

	sortByFused(candidates)
	return candidates
}

// sortByFused orders candidates descending by fused score, breaking
// ties by chunk id so the ordering is stable across runs.
func sortByFused(candidates []ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
}

// sortByRerank orders candidates descending by rerank score with the
// same id tie-break.
func sortByRerank(candidates []ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RerankScore != candidates[j].RerankScore {
			return candidates[i].RerankScore > candidates[j].RerankScore
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
}
