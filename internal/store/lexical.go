package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// KBTokenizerName is the bleve registry name of the engine tokenizer.
	KBTokenizerName = "kb_tokenizer"

	// KBAnalyzerName is the bleve registry name of the engine analyzer.
	KBAnalyzerName = "kb_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(KBTokenizerName, kbTokenizerConstructor)
}

// BleveLexicalScorer implements LexicalScorer with an in-memory bleve index.
// The index covers the whole corpus but Score only ever evaluates a supplied
// candidate subset: the match query is conjoined with a doc-ID query so bleve
// restricts scoring to the vector stage's candidate window.
type BleveLexicalScorer struct {
	mu     sync.RWMutex
	index  bleve.Index
	count  int
	closed bool
}

// Verify interface implementation at compile time
var _ LexicalScorer = (*BleveLexicalScorer)(nil)

// NewBleveLexicalScorer creates an empty lexical scorer. Build must be
// called before Score produces any signal.
func NewBleveLexicalScorer() *BleveLexicalScorer {
	return &BleveLexicalScorer{}
}

// lexicalDocument is the document shape indexed by bleve.
type lexicalDocument struct {
	Content string `json:"content"`
}

func createLexicalMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(KBAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": KBTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = KBAnalyzerName
	return indexMapping, nil
}

// Build indexes the corpus in a fresh in-memory index, replacing any
// previous one. An empty corpus leaves the scorer unbuilt.
func (b *BleveLexicalScorer) Build(ctx context.Context, chunks []*Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical scorer is closed")
	}

	if old := b.index; old != nil {
		_ = old.Close()
		b.index = nil
		b.count = 0
	}

	if len(chunks) == 0 {
		return nil
	}

	indexMapping, err := createLexicalMapping()
	if err != nil {
		return err
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return fmt.Errorf("create lexical index: %w", err)
	}

	batch := idx.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, lexicalDocument{Content: c.Content}); err != nil {
			_ = idx.Close()
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("execute batch: %w", err)
	}

	b.index = idx
	b.count = len(chunks)
	return nil
}

// Score computes normalized [0,1] lexical scores for the candidate subset.
// Candidates the query does not match score 0. Raw scores are min-max
// normalized across the subset; if all raw scores are equal and non-zero
// they normalize to 1.0. An unbuilt index returns an empty map.
func (b *BleveLexicalScorer) Score(ctx context.Context, query string, candidateIDs []string) (map[string]float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical scorer is closed")
	}
	if b.index == nil || len(candidateIDs) == 0 || strings.TrimSpace(query) == "" {
		return map[string]float64{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")
	matchQuery.Analyzer = KBAnalyzerName

	idQuery := bleve.NewDocIDQuery(candidateIDs)

	searchRequest := bleve.NewSearchRequest(bleve.NewConjunctionQuery(matchQuery, idQuery))
	searchRequest.Size = len(candidateIDs)

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	raw := make(map[string]float64, len(candidateIDs))
	for _, id := range candidateIDs {
		raw[id] = 0
	}
	for _, hit := range result.Hits {
		raw[hit.ID] = hit.Score
	}

	return normalizeScores(raw), nil
}

// DocCount returns the number of indexed documents.
func (b *BleveLexicalScorer) DocCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Close releases the underlying index.
func (b *BleveLexicalScorer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		err := b.index.Close()
		b.index = nil
		return err
	}
	return nil
}

// normalizeScores min-max normalizes raw scores into [0,1]. All-equal
// non-zero scores normalize to 1.0; all-zero scores produce an empty map
// (no lexical signal).
func normalizeScores(raw map[string]float64) map[string]float64 {
	var minScore, maxScore float64
	first := true
	for _, s := range raw {
		if first {
			minScore, maxScore = s, s
			first = false
			continue
		}
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	if maxScore == 0 {
		return map[string]float64{}
	}

	normalized := make(map[string]float64, len(raw))
	if maxScore == minScore {
		for id := range raw {
			normalized[id] = 1.0
		}
		return normalized
	}

	spread := maxScore - minScore
	for id, s := range raw {
		normalized[id] = (s - minScore) / spread
	}
	return normalized
}

// kbTokenizerConstructor creates the bleve tokenizer that delegates to the
// engine's active tokenizer backend.
func kbTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &kbBleveTokenizer{}, nil
}

// kbBleveTokenizer adapts the engine Tokenizer to bleve's analysis API so
// index-time and query-time tokenization match the engine's backend.
type kbBleveTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *kbBleveTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := ActiveTokenizer().Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}
