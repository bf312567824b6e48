package store

import (
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// Tokenizer produces a deterministic, lower-cased token sequence with
// punctuation stripped. Duplicates are preserved: raw term frequency matters
// for lexical scoring. Both backends produce comparable output so the lexical
// index works the same whichever one is active.
type Tokenizer interface {
	Tokenize(text string) []string
	Name() string
}

// UnicodeTokenizer is the primary tokenizer backend. It delegates word
// segmentation to bleve's unicode analyzer chain, which handles scripts
// the fallback regex does not segment well.
type UnicodeTokenizer struct {
	tokenizer analysis.Tokenizer
	lowercase analysis.TokenFilter
}

// NewUnicodeTokenizer creates the primary unicode segmentation tokenizer.
func NewUnicodeTokenizer() *UnicodeTokenizer {
	return &UnicodeTokenizer{
		tokenizer: unicode.NewUnicodeTokenizer(),
		lowercase: lowercase.NewLowerCaseFilter(),
	}
}

// Tokenize implements Tokenizer.
func (t *UnicodeTokenizer) Tokenize(text string) []string {
	stream := t.lowercase.Filter(t.tokenizer.Tokenize([]byte(text)))
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		tokens = append(tokens, string(tok.Term))
	}
	return tokens
}

// Name implements Tokenizer.
func (t *UnicodeTokenizer) Name() string { return "unicode" }

// wordRegex extracts word and number runs for the fallback tokenizer.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// RegexTokenizer is the fallback backend used when the primary analyzer is
// unavailable or disabled by configuration.
type RegexTokenizer struct{}

// NewRegexTokenizer creates the regex fallback tokenizer.
func NewRegexTokenizer() *RegexTokenizer {
	return &RegexTokenizer{}
}

// Tokenize implements Tokenizer.
func (t *RegexTokenizer) Tokenize(text string) []string {
	words := wordRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

// Name implements Tokenizer.
func (t *RegexTokenizer) Name() string { return "regex" }

// NewTokenizer selects a tokenizer backend by name. Unknown names fall back
// to the regex tokenizer so a misconfigured backend never disables lexical
// scoring entirely.
func NewTokenizer(backend string) Tokenizer {
	switch backend {
	case "", "unicode":
		return NewUnicodeTokenizer()
	default:
		return NewRegexTokenizer()
	}
}

// The bleve analyzer registered by the lexical scorer delegates to this
// process-wide tokenizer so index-time and query-time tokenization always
// agree with the engine's active backend.
var (
	activeTokenizerMu sync.RWMutex
	activeTokenizer   Tokenizer = NewUnicodeTokenizer()
)

// SetActiveTokenizer installs the tokenizer used by the lexical analyzer.
func SetActiveTokenizer(t Tokenizer) {
	if t == nil {
		return
	}
	activeTokenizerMu.Lock()
	activeTokenizer = t
	activeTokenizerMu.Unlock()
}

// ActiveTokenizer returns the tokenizer used by the lexical analyzer.
func ActiveTokenizer() Tokenizer {
	activeTokenizerMu.RLock()
	defer activeTokenizerMu.RUnlock()
	return activeTokenizer
}
