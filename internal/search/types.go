// Package search implements the hybrid retrieval engine: vector search
// with bounded lexical correction, confidence gating, optional
// reranking, and adaptive result sizing.
package search

import "time"

// Default engine settings. The fusion and sizing constants are
// hand-tuned business thresholds; they are exposed as configuration so
// domain owners can review them against their own corpus.
const (
	// DefaultCandidateWindow is the vector-stage shortlist size handed
	// to lexical correction and reranking.
	DefaultCandidateWindow = 12

	// DefaultTopK is the result count when the caller does not specify one.
	DefaultTopK = 3

	// DefaultScoreThreshold drops candidates whose fused score falls below it.
	DefaultScoreThreshold = 0.40

	// DefaultLowConfidenceThreshold flags non-empty results whose top
	// score falls below it.
	DefaultLowConfidenceThreshold = 0.55

	// DefaultBoostPivot and DefaultBoostScale shape the lexical
	// correction: boost = max(0, (lexical - pivot) * scale).
	DefaultBoostPivot = 0.5
	DefaultBoostScale = 0.1

	// Adaptive sizing breakpoints on the top score of the final ordering.
	DefaultSingleResultThreshold = 0.70
	DefaultDualResultThreshold   = 0.60

	// DefaultRerankTopK candidates are sent to the reranker;
	// DefaultRerankFinalK survive it.
	DefaultRerankTopK   = 5
	DefaultRerankFinalK = 3

	// Per-stage timeouts.
	DefaultEmbedTimeout   = 30 * time.Second
	DefaultVectorTimeout  = 10 * time.Second
	DefaultLexicalTimeout = 10 * time.Second
	DefaultRerankTimeout  = 10 * time.Second
)

// Config holds the engine's tuning parameters.
type Config struct {
	CandidateWindow        int
	TopK                   int
	ScoreThreshold         float64
	LowConfidenceThreshold float64

	BoostPivot float64
	BoostScale float64

	SingleResultThreshold float64
	DualResultThreshold   float64

	HybridEnabled bool

	RerankEnabled bool
	RerankTopK    int
	RerankFinalK  int

	EmbedTimeout   time.Duration
	VectorTimeout  time.Duration
	LexicalTimeout time.Duration
	RerankTimeout  time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CandidateWindow:        DefaultCandidateWindow,
		TopK:                   DefaultTopK,
		ScoreThreshold:         DefaultScoreThreshold,
		LowConfidenceThreshold: DefaultLowConfidenceThreshold,
		BoostPivot:             DefaultBoostPivot,
		BoostScale:             DefaultBoostScale,
		SingleResultThreshold:  DefaultSingleResultThreshold,
		DualResultThreshold:    DefaultDualResultThreshold,
		HybridEnabled:          true,
		RerankEnabled:          false,
		RerankTopK:             DefaultRerankTopK,
		RerankFinalK:           DefaultRerankFinalK,
		EmbedTimeout:           DefaultEmbedTimeout,
		VectorTimeout:          DefaultVectorTimeout,
		LexicalTimeout:         DefaultLexicalTimeout,
		RerankTimeout:          DefaultRerankTimeout,
	}
}

// withDefaults fills unset fields so a partially populated Config
// behaves sensibly. BoostPivot and DualResultThreshold treat only
// negative values as unset: zero is a legitimate setting for both
// (boost every lexical match; always allow a second result).
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CandidateWindow <= 0 {
		c.CandidateWindow = d.CandidateWindow
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = d.ScoreThreshold
	}
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if c.BoostPivot < 0 {
		c.BoostPivot = d.BoostPivot
	}
	if c.BoostScale <= 0 {
		c.BoostScale = d.BoostScale
	}
	if c.SingleResultThreshold <= 0 {
		c.SingleResultThreshold = d.SingleResultThreshold
	}
	if c.DualResultThreshold < 0 {
		c.DualResultThreshold = d.DualResultThreshold
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = d.RerankTopK
	}
	if c.RerankFinalK <= 0 {
		c.RerankFinalK = d.RerankFinalK
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = d.VectorTimeout
	}
	if c.LexicalTimeout <= 0 {
		c.LexicalTimeout = d.LexicalTimeout
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = d.RerankTimeout
	}
	return c
}

// ScoredCandidate is a chunk scored against a query. FusedScore is
// always populated; RerankScore only when the reranker ran.
type ScoredCandidate struct {
	ChunkID string
	Content string
	Title   string
	Source  string
	Page    int

	VectorScore   float64
	LexicalScore  float64
	LexicalScored bool
	FusedScore    float64
	RerankScore   float64
	Reranked      bool
}

// ActiveScore is the field the final ordering was sorted by.
func (c *ScoredCandidate) ActiveScore() float64 {
	if c.Reranked {
		return c.RerankScore
	}
	return c.FusedScore
}

// SearchResult is the final ranked output. An empty candidate list is a
// normal outcome (meta-query, empty corpus, or confidence-gate
// rejection), never an error.
type SearchResult struct {
	Candidates    []ScoredCandidate
	TopScore      float64
	LowConfidence bool
}

// Empty reports whether the result carries no candidates.
func (r *SearchResult) Empty() bool {
	return r == nil || len(r.Candidates) == 0
}

func emptyResult(lowConfidence bool) *SearchResult {
	return &SearchResult{LowConfidence: lowConfidence}
}
