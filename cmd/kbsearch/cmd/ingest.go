package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/finova/kbretrieval/internal/ingest"
)

var (
	ingestChunkSize    int
	ingestChunkOverlap int
)

// ingestDocument is the JSON shape of one document in an ingestion file.
type ingestDocument struct {
	ID       string         `json:"id,omitempty"`
	Title    string         `json:"title,omitempty"`
	Source   string         `json:"source,omitempty"`
	Page     int            `json:"page,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <documents.json>",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest reads a JSON array of documents, splits each into chunks,
embeds them, and upserts them into the corpus. Re-ingesting a document
with the same id replaces its previous chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		docs, err := readDocuments(args[0])
		if err != nil {
			return err
		}

		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		chunkSize := ingestChunkSize
		if chunkSize <= 0 {
			chunkSize = app.cfg.Chunking.ChunkSize
		}
		chunkOverlap := ingestChunkOverlap
		if chunkOverlap <= 0 {
			chunkOverlap = app.cfg.Chunking.ChunkOverlap
		}

		report, err := app.engine.AddDocuments(ctx, docs, chunkSize, chunkOverlap)
		if err != nil {
			app.renderer.RenderError(err)
			return err
		}

		if err := app.persist(); err != nil {
			return fmt.Errorf("failed to persist vector index: %w", err)
		}

		app.renderer.RenderReport(report)
		return nil
	},
}

func readDocuments(path string) ([]*ingest.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var raw []ingestDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s is not a JSON document array: %w", path, err)
	}

	docs := make([]*ingest.Document, len(raw))
	for i, d := range raw {
		docs[i] = &ingest.Document{
			ID:       d.ID,
			Title:    d.Title,
			Source:   d.Source,
			Page:     d.Page,
			Text:     d.Text,
			Metadata: d.Metadata,
		}
	}
	return docs, nil
}

func init() {
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "max characters per chunk (0 = configured default)")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", 0, "characters shared between neighbouring chunks (0 = configured default)")
	rootCmd.AddCommand(ingestCmd)
}
