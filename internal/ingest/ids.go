package ingest

import (
	"fmt"
	"regexp"
	"strings"
)

var slugStripRegex = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases s and collapses runs of non-alphanumerics into
// single hyphens.
func slugify(s string) string {
	slug := slugStripRegex.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

// documentID derives the stable base id for a document: the declared id
// if present, else a slug of the title, else a slug of the source label,
// else a synthetic id from the batch position.
func documentID(doc *Document, index int) string {
	if id := strings.TrimSpace(doc.ID); id != "" {
		return id
	}
	if slug := slugify(doc.Title); slug != "" {
		return slug
	}
	if slug := slugify(doc.Source); slug != "" {
		return slug
	}
	return fmt.Sprintf("doc-%d", index)
}

// chunkID returns the stable id of the n-th chunk of a document.
func chunkID(docID string, n int) string {
	return fmt.Sprintf("%s-chunk-%d", docID, n)
}
