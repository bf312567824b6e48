package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/finova/kbretrieval/internal/config"
	"github.com/finova/kbretrieval/internal/embed"
	"github.com/finova/kbretrieval/internal/kberr"
	"github.com/finova/kbretrieval/internal/logging"
	"github.com/finova/kbretrieval/internal/output"
	"github.com/finova/kbretrieval/internal/policy"
	"github.com/finova/kbretrieval/internal/search"
	"github.com/finova/kbretrieval/internal/store"
)

// Persisted corpus file names inside the data directory.
const (
	vectorIndexFile = "vectors.hnsw"
	metadataFile    = "chunks.db"
	ingestLockFile  = "ingest.lock"
)

// app wires the engine from configuration and owns the teardown order.
type app struct {
	cfg      *config.Config
	engine   *search.Engine
	vectors  *store.HNSWIndex
	renderer *output.Renderer

	vectorPath string
	cleanups   []func()
}

// newApp assembles the engine. Callers must Close it; Close persists the
// vector index before releasing resources.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: false,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if verbose {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		renderer: output.NewRenderer(os.Stdout, noColor),
	}
	a.cleanups = append(a.cleanups, logCleanup)

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("cannot create data directory %s: %w", dataDir, err)
	}

	store.SetActiveTokenizer(store.NewTokenizer(cfg.Search.Tokenizer))

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cleanups = append(a.cleanups, func() { _ = embedder.Close() })

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embedder.Dimensions()))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.vectors = vectors
	a.vectorPath = filepath.Join(dataDir, vectorIndexFile)
	a.cleanups = append(a.cleanups, func() { _ = vectors.Close() })

	if _, statErr := os.Stat(a.vectorPath); statErr == nil {
		if err := vectors.Load(a.vectorPath); err != nil {
			a.Close()
			return nil, kberr.CorpusError(fmt.Sprintf("cannot load vector index %s", a.vectorPath), err)
		}
	}

	metadata, err := store.NewSQLiteMetadataStore(filepath.Join(dataDir, metadataFile))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cleanups = append(a.cleanups, func() { _ = metadata.Close() })

	lexical := store.NewBleveLexicalScorer()
	a.cleanups = append(a.cleanups, func() { _ = lexical.Close() })

	policies, err := policy.NewStore(cfg.Policy.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	stopWatch, err := policies.Watch(logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cleanups = append(a.cleanups, stopWatch)

	engineCfg := search.Config{
		CandidateWindow:        cfg.Search.CandidateWindow,
		TopK:                   cfg.Search.TopK,
		ScoreThreshold:         cfg.Search.ScoreThreshold,
		LowConfidenceThreshold: cfg.Search.LowConfidenceThreshold,
		BoostPivot:             cfg.Search.BoostPivot,
		BoostScale:             cfg.Search.BoostScale,
		SingleResultThreshold:  cfg.Search.SingleResultThreshold,
		DualResultThreshold:    cfg.Search.DualResultThreshold,
		HybridEnabled:          cfg.Search.HybridEnabled,
		RerankEnabled:          cfg.Rerank.Enabled,
		RerankTopK:             cfg.Rerank.TopK,
		RerankFinalK:           cfg.Rerank.FinalK,
		EmbedTimeout:           cfg.EmbedTimeout(),
		RerankTimeout:          cfg.RerankTimeout(),
	}

	opts := []search.Option{
		search.WithLogger(logger),
		search.WithLockFile(filepath.Join(dataDir, ingestLockFile)),
	}
	if cfg.Rerank.Enabled {
		reranker := search.NewHTTPReranker(search.HTTPRerankerConfig{
			Endpoint: cfg.Rerank.Endpoint,
			Model:    cfg.Rerank.Model,
			Timeout:  cfg.RerankTimeout(),
		})
		a.cleanups = append(a.cleanups, func() { _ = reranker.Close() })
		opts = append(opts, search.WithReranker(reranker))
	}

	engine, err := search.NewEngine(engineCfg, embedder, vectors, metadata, lexical, policies, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	return a, nil
}

// buildEmbedder creates the configured embedding provider wrapped in the
// LRU cache.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.EmbeddingProvider, error) {
	var provider embed.EmbeddingProvider
	switch cfg.Embedding.Provider {
	case "static":
		provider = embed.NewStaticEmbedder()
	default:
		ollama, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:       cfg.Embedding.OllamaHost,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Embedding.BatchSize,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.Embedding.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		provider = ollama
	}

	return embed.NewCachedEmbedder(provider, cfg.Embedding.CacheSize)
}

// persist saves the vector index. Called by mutating commands.
func (a *app) persist() error {
	return a.vectors.Save(a.vectorPath)
}

// Close tears down in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
