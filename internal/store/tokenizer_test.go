package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnicodeTokenizer_LowercasesAndStripsPunctuation(t *testing.T) {
	tok := NewUnicodeTokenizer()

	tokens := tok.Tokenize("How do I block my Debit Card?")

	assert.Equal(t, []string{"how", "do", "i", "block", "my", "debit", "card"}, tokens)
}

func TestRegexTokenizer_LowercasesAndStripsPunctuation(t *testing.T) {
	tok := NewRegexTokenizer()

	tokens := tok.Tokenize("How do I block my Debit Card?")

	assert.Equal(t, []string{"how", "do", "i", "block", "my", "debit", "card"}, tokens)
}

func TestTokenizers_ProduceComparableOutput(t *testing.T) {
	inputs := []string{
		"transfer limit 5000 EUR",
		"IBAN: DE89 3704 0044 0532 0130 00",
		"card-blocked, what now?",
	}

	unicodeTok := NewUnicodeTokenizer()
	regexTok := NewRegexTokenizer()

	for _, input := range inputs {
		assert.Equal(t, regexTok.Tokenize(input), unicodeTok.Tokenize(input),
			"backends must normalize identically for %q", input)
	}
}

func TestTokenize_PreservesDuplicates(t *testing.T) {
	// Raw term frequency matters for lexical scoring, so repeated
	// tokens must not be collapsed.
	tokens := NewRegexTokenizer().Tokenize("card card card")
	assert.Len(t, tokens, 3)
}

func TestTokenize_EmptyInput(t *testing.T) {
	assert.Empty(t, NewUnicodeTokenizer().Tokenize(""))
	assert.Empty(t, NewRegexTokenizer().Tokenize("!!! ---"))
}

func TestNewTokenizer_FallsBackOnUnknownBackend(t *testing.T) {
	assert.Equal(t, "unicode", NewTokenizer("").Name())
	assert.Equal(t, "unicode", NewTokenizer("unicode").Name())
	assert.Equal(t, "regex", NewTokenizer("morph-v2").Name())
}

func TestTokenize_Deterministic(t *testing.T) {
	tok := NewUnicodeTokenizer()
	first := tok.Tokenize("Standing order fees and charges")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, tok.Tokenize("Standing order fees and charges"))
	}
}
