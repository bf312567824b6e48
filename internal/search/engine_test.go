package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finova/kbretrieval/internal/embed"
	"github.com/finova/kbretrieval/internal/ingest"
	"github.com/finova/kbretrieval/internal/policy"
	"github.com/finova/kbretrieval/internal/store"
)

// failingLexicalScorer always errors, for degradation tests.
type failingLexicalScorer struct{}

func (f *failingLexicalScorer) Build(context.Context, []*store.Chunk) error {
	return errors.New("lexical backend down")
}

func (f *failingLexicalScorer) Score(context.Context, string, []string) (map[string]float64, error) {
	return nil, errors.New("lexical backend down")
}

func (f *failingLexicalScorer) DocCount() int { return 0 }
func (f *failingLexicalScorer) Close() error  { return nil }

// failingReranker always errors, for fallback tests.
type failingReranker struct{}

func (f *failingReranker) Predict(context.Context, string, []string) ([]float64, error) {
	return nil, errors.New("reranker down")
}
func (f *failingReranker) Available(context.Context) bool { return false }
func (f *failingReranker) Close() error                   { return nil }

// fixedReranker returns preset scores keyed by document content.
type fixedReranker struct {
	scores map[string]float64
}

func (f *fixedReranker) Predict(_ context.Context, _ string, docs []string) ([]float64, error) {
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = f.scores[d]
	}
	return out, nil
}
func (f *fixedReranker) Available(context.Context) bool { return true }
func (f *fixedReranker) Close() error                   { return nil }

// gatedMetadataStore pauses AllChunks once, just after the read, so a
// test can complete a corpus mutation while a lexical rebuild is
// mid-flight with a pre-mutation snapshot.
type gatedMetadataStore struct {
	store.MetadataStore
	gate   atomic.Bool
	paused chan struct{}
	resume chan struct{}
}

func (g *gatedMetadataStore) AllChunks(ctx context.Context, limit int) ([]*store.Chunk, error) {
	chunks, err := g.MetadataStore.AllChunks(ctx, limit)
	if g.gate.CompareAndSwap(true, false) {
		close(g.paused)
		<-g.resume
	}
	return chunks, err
}

type engineFixture struct {
	engine   *Engine
	vectors  *store.HNSWIndex
	metadata *store.SQLiteMetadataStore
}

func newEngineFixture(t *testing.T, cfg Config, opts ...Option) *engineFixture {
	t.Helper()

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	metadata, err := store.NewSQLiteMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	lexical := store.NewBleveLexicalScorer()
	t.Cleanup(func() { _ = lexical.Close() })

	policies, err := policy.NewStore("")
	require.NoError(t, err)

	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	engine, err := NewEngine(cfg, embedder, vectors, metadata, lexical, policies, opts...)
	require.NoError(t, err)

	return &engineFixture{engine: engine, vectors: vectors, metadata: metadata}
}

func ingestFAQ(t *testing.T, f *engineFixture) {
	t.Helper()
	_, err := f.engine.AddDocuments(context.Background(), []*ingest.Document{
		{ID: "block-card", Title: "Blocking a card", Text: "To block a lost or stolen debit card, open the app and select freeze card. The block takes effect immediately."},
		{ID: "transfer-fees", Title: "Transfer fees", Text: "International wire transfers outside the eurozone carry a fee of 15 euros per transaction."},
		{ID: "overdraft", Title: "Overdraft limits", Text: "The arranged overdraft limit depends on your monthly income and account history."},
	}, 400, 40)
	require.NoError(t, err)
}

func TestEngine_EmptyCorpusReturnsEmptyResult(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())

	result, err := f.engine.Search(context.Background(), "how do I block my card", 3, 0.05)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.True(t, f.engine.IsLowConfidence(result))
}

func TestEngine_SearchReturnsRankedResults(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ingestFAQ(t, f)

	result, err := f.engine.Search(context.Background(), "block a lost debit card", 3, 0.05)
	require.NoError(t, err)
	require.False(t, result.Empty())

	assert.Equal(t, "block-card-chunk-0", result.Candidates[0].ChunkID)
	assert.NotEmpty(t, result.Candidates[0].Content)
	assert.Equal(t, result.TopScore, result.Candidates[0].FusedScore)

	for i := 1; i < len(result.Candidates); i++ {
		assert.GreaterOrEqual(t,
			result.Candidates[i-1].FusedScore,
			result.Candidates[i].FusedScore,
			"ordering must be descending")
	}
}

func TestEngine_MetaQueryBypassesRetrieval(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ingestFAQ(t, f)

	// Embedded default policy includes agent-escalation phrases.
	result, err := f.engine.Search(context.Background(), "connect me to an agent please", 3, 0.05)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.True(t, result.LowConfidence)
}

func TestEngine_GateRejectionIsLowConfidenceNotError(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ingestFAQ(t, f)

	result, err := f.engine.Search(context.Background(), "block my card", 3, 0.999)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.True(t, result.LowConfidence)
}

func TestEngine_EmptyQuery(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())

	result, err := f.engine.Search(context.Background(), "   ", 3, 0)
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestEngine_LexicalFailureDegradesToVectorOnly(t *testing.T) {
	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	metadata, err := store.NewSQLiteMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	policies, err := policy.NewStore("")
	require.NoError(t, err)

	engine, err := NewEngine(DefaultConfig(), embedder, vectors, metadata, &failingLexicalScorer{}, policies,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	_, err = engine.AddDocuments(context.Background(), []*ingest.Document{
		{ID: "block-card", Text: "To block a lost debit card use the app."},
	}, 400, 40)
	require.NoError(t, err)

	result, err := engine.Search(context.Background(), "block a lost debit card", 3, 0.05)
	require.NoError(t, err, "lexical failure must not propagate")
	require.False(t, result.Empty())

	// Fused equals the untouched vector score when lexical is down.
	assert.Equal(t, result.Candidates[0].VectorScore, result.Candidates[0].FusedScore)
	assert.False(t, result.Candidates[0].LexicalScored)
}

func TestEngine_RerankFailureKeepsFusedOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RerankEnabled = true

	f := newEngineFixture(t, cfg, WithReranker(&failingReranker{}))
	ingestFAQ(t, f)

	result, err := f.engine.Search(context.Background(), "block a lost debit card", 3, 0.05)
	require.NoError(t, err, "reranker failure must not propagate")
	require.False(t, result.Empty())

	assert.Equal(t, "block-card-chunk-0", result.Candidates[0].ChunkID)
	assert.False(t, result.Candidates[0].Reranked)
}

func TestEngine_RerankerUsesRawScoresForOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RerankEnabled = true
	cfg.SingleResultThreshold = 99 // disable adaptive shrinking
	cfg.DualResultThreshold = 98

	reranker := &fixedReranker{scores: map[string]float64{}}
	f := newEngineFixture(t, cfg, WithReranker(reranker))
	ingestFAQ(t, f)

	// Probe which contents reach the reranker, then invert the order
	// with raw (unbounded) scores.
	probe, err := f.engine.Search(context.Background(), "block a lost debit card", 3, 0.05)
	require.NoError(t, err)
	require.False(t, probe.Empty())

	for i, c := range probe.Candidates {
		// Lowest fused candidate gets the highest raw score.
		reranker.scores[c.Content] = float64(10 * (i + 1))
	}

	result, err := f.engine.Search(context.Background(), "block a lost debit card", 3, 0.05)
	require.NoError(t, err)
	require.False(t, result.Empty())

	assert.True(t, result.Candidates[0].Reranked)
	assert.Equal(t, result.TopScore, result.Candidates[0].RerankScore)
	for i := 1; i < len(result.Candidates); i++ {
		assert.GreaterOrEqual(t,
			result.Candidates[i-1].RerankScore,
			result.Candidates[i].RerankScore)
	}
}

func TestEngine_AdaptiveSizerShrinksResults(t *testing.T) {
	cfg := DefaultConfig()
	// Static embeddings produce modest similarities; lower the
	// breakpoints so the staircase triggers.
	cfg.SingleResultThreshold = 0.30
	cfg.DualResultThreshold = 0.20
	cfg.LowConfidenceThreshold = 0.01

	f := newEngineFixture(t, cfg)
	ingestFAQ(t, f)

	result, err := f.engine.Search(context.Background(), "block a lost debit card", 5, 0.05)
	require.NoError(t, err)
	require.False(t, result.Empty())
	assert.Len(t, result.Candidates, 1, "top score above single threshold returns exactly one")
}

func TestEngine_ReingestIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ingestFAQ(t, f)
	ingestFAQ(t, f)

	stats, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, stats.Vectors)
	assert.Equal(t, 3, stats.Chunks)
}

func TestEngine_DeletedChunkNoLongerReturned(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ingestFAQ(t, f)

	require.NoError(t, f.engine.Reset(context.Background()))

	result, err := f.engine.Search(context.Background(), "block a lost debit card", 3, 0.05)
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestEngine_StatsReflectCorpus(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())

	stats, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Chunks)
	assert.False(t, stats.LexicalReady, "lexical index builds lazily")
	assert.Equal(t, "static", stats.EmbeddingModel)

	ingestFAQ(t, f)
	_, err = f.engine.Search(context.Background(), "overdraft limit", 3, 0.05)
	require.NoError(t, err)

	stats, err = f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Chunks)
	assert.True(t, stats.LexicalReady, "first hybrid search builds the lexical index")
}

func TestEngine_MutationDuringLexicalRebuildKeepsIndexStale(t *testing.T) {
	inner, err := store.NewSQLiteMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	gated := &gatedMetadataStore{
		MetadataStore: inner,
		paused:        make(chan struct{}),
		resume:        make(chan struct{}),
	}

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	lexical := store.NewBleveLexicalScorer()
	t.Cleanup(func() { _ = lexical.Close() })

	policies, err := policy.NewStore("")
	require.NoError(t, err)

	engine, err := NewEngine(DefaultConfig(), embedder, vectors, gated, lexical, policies,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	_, err = engine.AddDocuments(context.Background(), []*ingest.Document{
		{ID: "block-card", Title: "Blocking a card", Text: "To block a lost or stolen debit card, freeze it in the app."},
	}, 400, 40)
	require.NoError(t, err)

	gated.gate.Store(true)

	done := make(chan error, 1)
	go func() {
		_, searchErr := engine.Search(context.Background(), "block my card", 3, 0.01)
		done <- searchErr
	}()

	// The rebuild has snapshotted the one-document corpus and is paused.
	// Land a second document before letting it finish.
	<-gated.paused
	_, err = engine.AddDocuments(context.Background(), []*ingest.Document{
		{ID: "transfer-fees", Title: "Transfer fees", Text: "International wire transfers carry a fee of 15 euros."},
	}, 400, 40)
	require.NoError(t, err)
	close(gated.resume)

	require.NoError(t, <-done)

	// The rebuilt index predates the mutation, so it must still be
	// flagged stale rather than reported ready.
	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, lexical.DocCount())
	assert.False(t, stats.LexicalReady)

	// The next hybrid query rebuilds over the full corpus.
	_, err = engine.Search(context.Background(), "transfer fee", 3, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 2, lexical.DocCount())
}

func TestEngine_StatsFlagOrphanVectors(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ingestFAQ(t, f)

	stats, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.OrphanVectors)

	// Drop a metadata row behind the engine's back; the cross-check
	// must surface the divergence.
	require.NoError(t, f.metadata.DeleteChunks(context.Background(), []string{"block-card-chunk-0"}))

	stats, err = f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OrphanVectors)
	assert.Equal(t, stats.Chunks, stats.Vectors-stats.OrphanVectors)
}

func TestEngine_RequiresBackends(t *testing.T) {
	policies, err := policy.NewStore("")
	require.NoError(t, err)

	_, err = NewEngine(DefaultConfig(), nil, nil, nil, nil, policies)
	assert.Error(t, err)
}

func TestEngine_IsLowConfidence(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())

	assert.True(t, f.engine.IsLowConfidence(&SearchResult{}))
	assert.True(t, f.engine.IsLowConfidence(&SearchResult{
		Candidates:    []ScoredCandidate{{FusedScore: 0.45}},
		LowConfidence: true,
	}))
	assert.False(t, f.engine.IsLowConfidence(&SearchResult{
		Candidates: []ScoredCandidate{{FusedScore: 0.8}},
		TopScore:   0.8,
	}))
}
