// Package ingest implements the corpus mutation pipeline: splitting
// documents into chunks, normalizing metadata, deriving stable chunk ids,
// and upserting into the vector index and metadata store.
package ingest

import (
	"strings"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120
)

// separators are tried in order: paragraph breaks, line breaks,
// sentence-terminal punctuation, spaces, and finally a hard character
// cut. Splitting at the earliest separator that appears keeps chunk
// boundaries on the most natural break available.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Splitter splits text into chunks of at most chunkSize characters with
// chunkOverlap characters carried between neighbours.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSplitter creates a splitter. Non-positive sizes fall back to the
// defaults; overlap is clamped below chunkSize.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split splits text into chunks. Empty or whitespace-only input returns
// nil.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for _, chunk := range s.split(text, separators) {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// split recursively splits text at the first separator present, merging
// the pieces back into chunks of at most chunkSize. Pieces that are still
// too large are split with the remaining, finer separators.
func (s *Splitter) split(text string, seps []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	sep := ""
	var finer []string
	for i, candidate := range seps {
		if strings.Contains(text, candidate) {
			sep = candidate
			finer = seps[i+1:]
			break
		}
	}

	if sep == "" {
		return s.hardCut(text)
	}

	return s.merge(strings.SplitAfter(text, sep), finer)
}

// merge greedily packs pieces into chunks of at most chunkSize, seeding
// each new chunk with the overlap tail of the previous one.
func (s *Splitter) merge(pieces []string, finer []string) []string {
	var chunks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunk := buf.String()
		chunks = append(chunks, chunk)
		buf.Reset()
		buf.WriteString(s.overlapTail(chunk))
	}

	for _, piece := range pieces {
		if piece == "" {
			continue
		}

		if len(piece) > s.chunkSize {
			// Piece alone exceeds the budget; flush what we have and
			// split the piece with finer separators.
			flush()
			buf.Reset()
			chunks = append(chunks, s.split(piece, finer)...)
			if len(chunks) > 0 {
				buf.WriteString(s.overlapTail(chunks[len(chunks)-1]))
			}
			continue
		}

		if buf.Len()+len(piece) > s.chunkSize {
			flush()
		}
		buf.WriteString(piece)
	}

	// The trailing buffer may hold only the seeded overlap, which is
	// already covered by the previous chunk.
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		last := ""
		if len(chunks) > 0 {
			last = chunks[len(chunks)-1]
		}
		if !strings.HasSuffix(last, rest) {
			chunks = append(chunks, buf.String())
		}
	}

	return chunks
}

// hardCut slices text at fixed strides, the last-resort fallback when no
// separator is present.
func (s *Splitter) hardCut(text string) []string {
	step := s.chunkSize - s.chunkOverlap
	var chunks []string
	for pos := 0; ; pos += step {
		end := min(pos+s.chunkSize, len(text))
		chunks = append(chunks, text[pos:end])
		if end >= len(text) {
			break
		}
	}
	return chunks
}

// overlapTail returns the last chunkOverlap characters of chunk, cut at
// a space where possible so the overlap starts on a word boundary.
func (s *Splitter) overlapTail(chunk string) string {
	if s.chunkOverlap == 0 || len(chunk) <= s.chunkOverlap {
		return ""
	}
	tail := chunk[len(chunk)-s.chunkOverlap:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail
}
