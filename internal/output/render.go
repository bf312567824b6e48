package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/finova/kbretrieval/internal/ingest"
	"github.com/finova/kbretrieval/internal/search"
)

// snippetLength bounds the content preview per result.
const snippetLength = 200

// Renderer writes human-readable engine output.
type Renderer struct {
	w      io.Writer
	styles Styles
}

// NewRenderer creates a renderer. Colors are used only when w is an
// interactive terminal and noColor is false.
func NewRenderer(w io.Writer, noColor bool) *Renderer {
	return &Renderer{
		w:      w,
		styles: GetStyles(noColor || !IsTerminal(w)),
	}
}

// RenderResult prints a ranked search result.
func (r *Renderer) RenderResult(query string, result *search.SearchResult) {
	if result.Empty() {
		fmt.Fprintln(r.w, r.styles.Warning.Render("No confident match found."))
		fmt.Fprintln(r.w, r.styles.Label.Render("This query should be escalated to a human agent."))
		return
	}

	fmt.Fprintln(r.w, r.styles.Header.Render(fmt.Sprintf("Results for %q", query)))
	if result.LowConfidence {
		fmt.Fprintln(r.w, r.styles.Warning.Render("low confidence - consider escalation"))
	}
	fmt.Fprintln(r.w)

	for i, c := range result.Candidates {
		header := fmt.Sprintf("%d. %s", i+1, titleOrID(c))
		fmt.Fprintln(r.w, r.styles.Header.Render(header))

		score := fmt.Sprintf("   score %.3f", c.ActiveScore())
		if c.Reranked {
			score += fmt.Sprintf(" (fused %.3f)", c.FusedScore)
		}
		if c.Source != "" {
			score += "  " + c.Source
		}
		fmt.Fprintln(r.w, r.styles.Score.Render(score))

		fmt.Fprintln(r.w, "   "+snippet(c.Content))
		fmt.Fprintln(r.w)
	}
}

// RenderReport prints an ingestion report.
func (r *Renderer) RenderReport(report *ingest.Report) {
	fmt.Fprintln(r.w, r.styles.Success.Render(fmt.Sprintf("Ingested %d chunks", len(report.ChunkIDs))))
	for _, skipped := range report.Skipped {
		line := fmt.Sprintf("skipped document %d", skipped.Index)
		if skipped.Title != "" {
			line += fmt.Sprintf(" (%s)", skipped.Title)
		}
		line += ": " + skipped.Reason
		fmt.Fprintln(r.w, r.styles.Warning.Render(line))
	}
}

// RenderStats prints corpus statistics.
func (r *Renderer) RenderStats(stats *search.Stats) {
	fmt.Fprintln(r.w, r.styles.Header.Render("Corpus"))
	fmt.Fprintf(r.w, "  %s %d\n", r.styles.Label.Render("chunks:"), stats.Chunks)
	fmt.Fprintf(r.w, "  %s %d\n", r.styles.Label.Render("vectors:"), stats.Vectors)
	if stats.OrphanVectors > 0 {
		fmt.Fprintf(r.w, "  %s %s\n", r.styles.Label.Render("orphan vectors:"), r.styles.Warning.Render(fmt.Sprintf("%d", stats.OrphanVectors)))
	}
	fmt.Fprintf(r.w, "  %s %s (%d dims)\n", r.styles.Label.Render("embedding:"), stats.EmbeddingModel, stats.Dimensions)
	fmt.Fprintf(r.w, "  %s %v\n", r.styles.Label.Render("lexical ready:"), stats.LexicalReady)
	fmt.Fprintf(r.w, "  %s %v\n", r.styles.Label.Render("hybrid:"), stats.HybridEnabled)
	fmt.Fprintf(r.w, "  %s %v\n", r.styles.Label.Render("rerank:"), stats.RerankEnabled)
}

// RenderError prints an error line.
func (r *Renderer) RenderError(err error) {
	fmt.Fprintln(r.w, r.styles.Error.Render("error: "+err.Error()))
}

func titleOrID(c search.ScoredCandidate) string {
	if c.Title != "" {
		return c.Title
	}
	return c.ChunkID
}

func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= snippetLength {
		return content
	}
	cut := content[:snippetLength]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
