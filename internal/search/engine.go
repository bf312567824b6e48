package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/finova/kbretrieval/internal/embed"
	"github.com/finova/kbretrieval/internal/ingest"
	"github.com/finova/kbretrieval/internal/kberr"
	"github.com/finova/kbretrieval/internal/policy"
	"github.com/finova/kbretrieval/internal/store"
)

// Engine owns the retrieval pipeline. Searches run concurrently without
// locking; corpus mutations are serialized and cover the whole
// delete-upsert-invalidate sequence so no reader observes a half-updated
// corpus.
type Engine struct {
	cfg      Config
	embedder embed.EmbeddingProvider
	vectors  store.VectorIndex
	metadata store.MetadataStore
	lexical  store.LexicalScorer
	policies *policy.Store

	filter   *MetaQueryFilter
	expander *Expander
	reranker Reranker
	pipeline *ingest.Pipeline

	logger   *slog.Logger
	lockPath string

	mutationMu sync.Mutex

	// lexicalDirty marks the lexical index stale; the next hybrid query
	// triggers a rebuild, deduplicated across concurrent callers.
	lexicalDirty atomic.Bool
	rebuildGroup singleflight.Group
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithReranker enables the rerank stage.
func WithReranker(r Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithLockFile enables a cross-process lock for corpus mutations.
func WithLockFile(path string) Option {
	return func(e *Engine) { e.lockPath = path }
}

// NewEngine wires the retrieval pipeline. All storage backends are
// required; the reranker is optional.
func NewEngine(cfg Config, embedder embed.EmbeddingProvider, vectors store.VectorIndex, metadata store.MetadataStore, lexical store.LexicalScorer, policies *policy.Store, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, kberr.ConfigurationError("embedding provider is required", nil)
	}
	if vectors == nil || metadata == nil || lexical == nil {
		return nil, kberr.ConfigurationError("vector index, metadata store, and lexical scorer are required", nil)
	}
	if policies == nil {
		return nil, kberr.ConfigurationError("policy store is required", nil)
	}

	e := &Engine{
		cfg:      cfg.withDefaults(),
		embedder: embedder,
		vectors:  vectors,
		metadata: metadata,
		lexical:  lexical,
		policies: policies,
		filter:   NewMetaQueryFilter(policies),
		expander: NewExpander(policies),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	pipelineOpts := []ingest.Option{ingest.WithLogger(e.logger)}
	if e.lockPath != "" {
		pipelineOpts = append(pipelineOpts, ingest.WithLockFile(e.lockPath))
	}
	e.pipeline = ingest.NewPipeline(vectors, metadata, embedder, e.invalidateLexical, pipelineOpts...)

	// Lazy first build: the lexical index materializes on the first
	// hybrid query, not at startup.
	e.lexicalDirty.Store(true)

	return e, nil
}

// Search runs the full retrieval pipeline for one query. topK <= 0 and
// scoreThreshold <= 0 fall back to the configured defaults. Absence of
// results is a normal outcome, never an error; errors are reserved for
// conditions that make the engine unusable.
func (e *Engine) Search(ctx context.Context, query string, topK int, scoreThreshold float64) (*SearchResult, error) {
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	if scoreThreshold <= 0 {
		scoreThreshold = e.cfg.ScoreThreshold
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return emptyResult(true), nil
	}

	if e.filter.Matches(query) {
		e.logger.Debug("meta_query_bypassed", slog.String("query", query))
		return emptyResult(true), nil
	}

	expanded := e.expander.Expand(query)

	candidates, ok := e.vectorStage(ctx, expanded)
	if !ok {
		return emptyResult(true), nil
	}
	if len(candidates) == 0 {
		return emptyResult(true), nil
	}

	e.attachChunks(ctx, candidates)

	lexScores := e.lexicalStage(ctx, expanded, candidates)
	candidates = fuseScores(candidates, lexScores, e.cfg)

	candidates = applyGate(candidates, scoreThreshold)
	if len(candidates) == 0 {
		return emptyResult(true), nil
	}

	candidates = e.rerankStage(ctx, query, candidates)

	topScore := candidates[0].ActiveScore()
	size := min(adaptiveSize(topScore, topK, e.cfg), len(candidates))

	return &SearchResult{
		Candidates:    candidates[:size],
		TopScore:      topScore,
		LowConfidence: topScore < e.cfg.LowConfidenceThreshold,
	}, nil
}

// vectorStage embeds the expanded query and retrieves the candidate
// window. Any failure here aborts the query into an empty low-confidence
// result: without the primary signal there is nothing to correct.
func (e *Engine) vectorStage(ctx context.Context, expanded string) ([]ScoredCandidate, bool) {
	embedCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()

	vector, err := e.embedder.Embed(embedCtx, expanded)
	if err != nil {
		e.logger.Warn("embed_stage_failed", slog.String("error", err.Error()))
		return nil, false
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.cfg.VectorTimeout)
	defer cancel()

	hits, err := e.vectors.Search(searchCtx, vector, e.cfg.CandidateWindow)
	if err != nil {
		e.logger.Warn("vector_stage_failed", slog.String("error", err.Error()))
		return nil, false
	}

	candidates := make([]ScoredCandidate, len(hits))
	for i, hit := range hits {
		candidates[i] = ScoredCandidate{
			ChunkID:     hit.ID,
			VectorScore: float64(hit.Score),
		}
	}
	return candidates, true
}

// attachChunks loads content and labels for the candidate window.
// Missing chunks (metadata lagging a concurrent mutation) keep their
// scores but carry empty content.
func (e *Engine) attachChunks(ctx context.Context, candidates []ScoredCandidate) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}

	chunks, err := e.metadata.GetChunks(ctx, ids)
	if err != nil {
		e.logger.Warn("chunk_lookup_failed", slog.String("error", err.Error()))
		return
	}

	byID := make(map[string]*store.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	for i := range candidates {
		if chunk, found := byID[candidates[i].ChunkID]; found {
			candidates[i].Content = chunk.Content
			candidates[i].Title = chunk.Title
			candidates[i].Source = chunk.Source
			candidates[i].Page = chunk.Page
		}
	}
}

// lexicalStage scores the candidate window lexically. Any failure
// degrades to vector-only fusion (nil map), never aborts the query.
func (e *Engine) lexicalStage(ctx context.Context, expanded string, candidates []ScoredCandidate) map[string]float64 {
	if !e.cfg.HybridEnabled {
		return nil
	}

	lexCtx, cancel := context.WithTimeout(ctx, e.cfg.LexicalTimeout)
	defer cancel()

	if err := e.ensureLexicalIndex(lexCtx); err != nil {
		e.logger.Warn("lexical_rebuild_failed", slog.String("error", err.Error()))
		return nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}

	scores, err := e.lexical.Score(lexCtx, expanded, ids)
	if err != nil {
		e.logger.Warn("lexical_stage_failed", slog.String("error", err.Error()))
		return nil
	}
	return scores
}

// ensureLexicalIndex rebuilds the lexical index if a mutation
// invalidated it. Concurrent callers share one rebuild; vector-only
// reads are never blocked because they skip this path entirely.
func (e *Engine) ensureLexicalIndex(ctx context.Context) error {
	if !e.lexicalDirty.Load() {
		return nil
	}

	_, err, _ := e.rebuildGroup.Do("lexical", func() (any, error) {
		if !e.lexicalDirty.Load() {
			return nil, nil
		}

		// Clear before snapshotting the corpus: a mutation that lands
		// mid-rebuild re-marks the index stale and the next query
		// rebuilds, instead of a stale index being reported clean.
		e.lexicalDirty.Store(false)

		chunks, err := e.metadata.AllChunks(ctx, 0)
		if err != nil {
			e.lexicalDirty.Store(true)
			return nil, err
		}
		if err := e.lexical.Build(ctx, chunks); err != nil {
			e.lexicalDirty.Store(true)
			return nil, err
		}

		e.logger.Debug("lexical_index_rebuilt", slog.Int("chunks", len(chunks)))
		return nil, nil
	})
	return err
}

// rerankStage re-scores the top fused candidates against the original
// query with the cross-encoder. Failure falls back to the pre-rerank
// fused ordering; reranking must never abort a search.
func (e *Engine) rerankStage(ctx context.Context, originalQuery string, candidates []ScoredCandidate) []ScoredCandidate {
	if !e.cfg.RerankEnabled || e.reranker == nil {
		return candidates
	}

	n := min(e.cfg.RerankTopK, len(candidates))
	head := candidates[:n]

	documents := make([]string, n)
	for i, c := range head {
		documents[i] = c.Content
	}

	rerankCtx, cancel := context.WithTimeout(ctx, e.cfg.RerankTimeout)
	defer cancel()

	scores, err := e.reranker.Predict(rerankCtx, originalQuery, documents)
	if err != nil || len(scores) != n {
		e.logger.Warn("rerank_stage_failed", slog.Any("error", err))
		return candidates
	}

	for i := range head {
		head[i].RerankScore = scores[i]
		head[i].Reranked = true
	}

	sortByRerank(head)
	return head[:min(e.cfg.RerankFinalK, n)]
}

// AddDocuments ingests a batch of documents. chunkSize and chunkOverlap
// <= 0 use the ingestion defaults.
func (e *Engine) AddDocuments(ctx context.Context, docs []*ingest.Document, chunkSize, chunkOverlap int) (*ingest.Report, error) {
	e.mutationMu.Lock()
	defer e.mutationMu.Unlock()
	return e.pipeline.AddDocuments(ctx, docs, chunkSize, chunkOverlap)
}

// Reset drops the entire corpus. Idempotent.
func (e *Engine) Reset(ctx context.Context) error {
	e.mutationMu.Lock()
	defer e.mutationMu.Unlock()
	return e.pipeline.Reset(ctx)
}

// IsLowConfidence reports whether a result should trigger escalation:
// either no candidates survived, or the top score sits below the
// low-confidence threshold.
func (e *Engine) IsLowConfidence(result *SearchResult) bool {
	return result.Empty() || result.LowConfidence
}

// Stats describes the current corpus and engine state. OrphanVectors
// counts vector entries with no metadata row; non-zero means the two
// stores diverged and the corpus should be re-ingested.
type Stats struct {
	Chunks         int
	Vectors        int
	OrphanVectors  int
	EmbeddingModel string
	Dimensions     int
	LexicalReady   bool
	HybridEnabled  bool
	RerankEnabled  bool
}

// Stats reports corpus counters, stage readiness, and a cross-check of
// the vector index against the metadata store.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	chunkCount, err := e.metadata.Count(ctx)
	if err != nil {
		return nil, err
	}

	orphans := 0
	if ids := e.vectors.Enumerate(0); len(ids) > 0 {
		chunks, err := e.metadata.GetChunks(ctx, ids)
		if err != nil {
			return nil, err
		}
		orphans = len(ids) - len(chunks)
	}

	return &Stats{
		Chunks:         chunkCount,
		Vectors:        e.vectors.Count(),
		OrphanVectors:  orphans,
		EmbeddingModel: e.embedder.ModelName(),
		Dimensions:     e.embedder.Dimensions(),
		LexicalReady:   !e.lexicalDirty.Load(),
		HybridEnabled:  e.cfg.HybridEnabled,
		RerankEnabled:  e.cfg.RerankEnabled && e.reranker != nil,
	}, nil
}

// invalidateLexical marks the lexical index stale. Called by the
// mutation pipeline strictly after the vector-side mutation completes.
func (e *Engine) invalidateLexical() {
	e.lexicalDirty.Store(true)
}
