package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/finova/kbretrieval/internal/embed"
	"github.com/finova/kbretrieval/internal/kberr"
	"github.com/finova/kbretrieval/internal/store"
)

// embedConcurrency bounds the number of embedding batches in flight.
const embedConcurrency = 4

// lockRetryDelay is the polling interval while waiting for the
// cross-process ingestion lock.
const lockRetryDelay = 100 * time.Millisecond

// Document is one knowledge-base item to ingest.
type Document struct {
	ID       string         // optional declared id
	Title    string
	Source   string
	Page     int
	Text     string
	Metadata map[string]any
}

// SkippedDocument records a document dropped from an ingestion batch.
type SkippedDocument struct {
	Index  int
	Title  string
	Reason string
}

// Report summarizes one ingestion batch. Skipped documents do not fail
// the batch; they are reported so the caller can surface them.
type Report struct {
	ChunkIDs []string
	Skipped  []SkippedDocument
}

// Pipeline runs corpus mutations: chunking, embedding, upserting, and
// lexical-cache invalidation. Mutations are serialized across processes
// via an optional file lock; in-process serialization is the engine's
// responsibility.
type Pipeline struct {
	vectors    store.VectorIndex
	metadata   store.MetadataStore
	embedder   embed.EmbeddingProvider
	logger     *slog.Logger
	fileLock   *flock.Flock
	invalidate func()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLockFile enables a cross-process mutation lock at path.
func WithLockFile(path string) Option {
	return func(p *Pipeline) {
		if path != "" {
			p.fileLock = flock.New(path)
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline. invalidate is called after every
// successful mutation, strictly after the vector-side mutation completes,
// so the lexical cache is never stale relative to the vector index.
func NewPipeline(vectors store.VectorIndex, metadata store.MetadataStore, embedder embed.EmbeddingProvider, invalidate func(), opts ...Option) *Pipeline {
	p := &Pipeline{
		vectors:    vectors,
		metadata:   metadata,
		embedder:   embedder,
		logger:     slog.Default(),
		invalidate: invalidate,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddDocuments chunks, embeds, and upserts a batch of documents.
// Malformed documents are skipped and reported, never fatal for the
// batch. Chunk ids are stable across re-ingestion, and existing chunks
// with the same ids are replaced.
func (p *Pipeline) AddDocuments(ctx context.Context, docs []*Document, chunkSize, chunkOverlap int) (*Report, error) {
	unlock, err := p.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	report := &Report{}
	splitter := NewSplitter(chunkSize, chunkOverlap)

	chunks := p.buildChunks(docs, splitter, report)
	if len(chunks) == 0 {
		return report, nil
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, kberr.TransientBackendError("embedding failed during ingestion", err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	// Replace-then-insert: delete tolerates missing ids, so first-time
	// ingestion and re-ingestion share one path.
	if err := p.vectors.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete superseded vectors: %w", err)
	}
	if err := p.metadata.DeleteChunks(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete superseded chunks: %w", err)
	}
	if err := p.vectors.Upsert(ctx, ids, vectors); err != nil {
		return nil, fmt.Errorf("failed to upsert vectors: %w", err)
	}
	if err := p.metadata.SaveChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to save chunk metadata: %w", err)
	}

	p.invalidate()

	report.ChunkIDs = ids
	p.logger.Info("documents_ingested",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(ids)),
		slog.Int("skipped", len(report.Skipped)))
	return report, nil
}

// buildChunks splits and normalizes the batch. Within one batch, the
// first chunk to claim an id wins; later collisions are dropped.
func (p *Pipeline) buildChunks(docs []*Document, splitter *Splitter, report *Report) []*store.Chunk {
	seen := make(map[string]struct{})
	var chunks []*store.Chunk

	for i, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Text) == "" {
			report.Skipped = append(report.Skipped, SkippedDocument{
				Index:  i,
				Title:  titleOf(doc),
				Reason: "document has no text",
			})
			continue
		}

		docID := documentID(doc, i)
		metadata := NormalizeMetadata(doc.Metadata)

		for n, content := range splitter.Split(doc.Text) {
			id := chunkID(docID, n)
			if _, dup := seen[id]; dup {
				p.logger.Warn("duplicate_chunk_id_dropped", slog.String("chunk_id", id))
				continue
			}
			seen[id] = struct{}{}

			chunks = append(chunks, &store.Chunk{
				ID:         id,
				DocumentID: docID,
				Index:      n,
				Title:      doc.Title,
				Source:     doc.Source,
				Page:       doc.Page,
				Content:    content,
				Metadata:   metadata,
			})
		}
	}

	return chunks
}

// embedChunks embeds chunk contents in bounded-concurrency batches.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []*store.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(chunks); start += embed.DefaultBatchSize {
		end := min(start+embed.DefaultBatchSize, len(chunks))

		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Content
			}

			batch, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Reset drops the entire persisted corpus and reinitializes an empty
// store. Idempotent.
func (p *Pipeline) Reset(ctx context.Context) error {
	unlock, err := p.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := p.vectors.Reset(); err != nil {
		return fmt.Errorf("failed to reset vector index: %w", err)
	}
	if err := p.metadata.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset metadata store: %w", err)
	}

	p.invalidate()
	p.logger.Info("corpus_reset")
	return nil
}

// acquireLock takes the cross-process lock when configured.
func (p *Pipeline) acquireLock(ctx context.Context) (func(), error) {
	if p.fileLock == nil {
		return func() {}, nil
	}

	locked, err := p.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, kberr.TransientBackendError("failed to acquire ingestion lock", err)
	}
	if !locked {
		return nil, kberr.TransientBackendError("ingestion lock is held by another process", nil)
	}
	return func() { _ = p.fileLock.Unlock() }, nil
}

func titleOf(doc *Document) string {
	if doc == nil {
		return ""
	}
	return doc.Title
}
