package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_ShortTextIsSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	chunks := s.Split("How do I block my debit card?")
	require.Len(t, chunks, 1)
	assert.Equal(t, "How do I block my debit card?", chunks[0])
}

func TestSplitter_EmptyInput(t *testing.T) {
	s := NewSplitter(100, 20)
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplitter_PrefersParagraphBreaks(t *testing.T) {
	para1 := strings.Repeat("a", 40)
	para2 := strings.Repeat("b", 40)
	text := para1 + "\n\n" + para2

	chunks := NewSplitter(50, 0).Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0])
	assert.Equal(t, para2, chunks[1])
}

func TestSplitter_FallsBackToLineBreaks(t *testing.T) {
	line1 := strings.Repeat("a", 40)
	line2 := strings.Repeat("b", 40)
	text := line1 + "\n" + line2

	chunks := NewSplitter(50, 0).Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, line1, chunks[0])
	assert.Equal(t, line2, chunks[1])
}

func TestSplitter_FallsBackToSentences(t *testing.T) {
	text := "Fees apply to international transfers above the monthly allowance. " +
		"Standing orders within the eurozone remain free of charge. " +
		"Express transfers carry a surcharge per transaction."

	chunks := NewSplitter(80, 0).Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 80)
	}
}

func TestSplitter_HardCutWithoutSeparators(t *testing.T) {
	text := strings.Repeat("x", 250)

	chunks := NewSplitter(100, 10).Split(text)
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100)
	}

	// Consecutive chunks share the overlap region.
	assert.Equal(t, chunks[0][90:], chunks[1][:10])
}

func TestSplitter_ChunkSizeHonored(t *testing.T) {
	text := strings.Repeat("customer service questions about banking products. ", 40)

	chunks := NewSplitter(120, 30).Split(text)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 120, "chunk %d", i)
	}
}

func TestSplitter_OverlapClampedBelowChunkSize(t *testing.T) {
	s := NewSplitter(50, 200)
	assert.Equal(t, 49, s.chunkOverlap)
}

func TestSplitter_Deterministic(t *testing.T) {
	text := strings.Repeat("fees and charges for premium accounts. ", 30)
	s := NewSplitter(100, 20)

	first := s.Split(text)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, s.Split(text))
	}
}
