package search

import (
	"sort"
	"strings"

	"github.com/finova/kbretrieval/internal/policy"
)

// maxSynonymsPerTerm bounds query drift: at most two synonyms are
// appended per matched term.
const maxSynonymsPerTerm = 2

// Expander augments a query with domain synonyms from the policy table.
// The expanded form feeds the vector and lexical stages; the reranker
// always judges against the original query.
type Expander struct {
	policies *policy.Store
}

// NewExpander creates an expander backed by the policy store.
func NewExpander(policies *policy.Store) *Expander {
	return &Expander{policies: policies}
}

// Expand appends up to maxSynonymsPerTerm synonyms for every configured
// term that appears as a substring of the lower-cased query, skipping
// synonyms already present. If nothing matches, the original query is
// returned unchanged.
func (e *Expander) Expand(query string) string {
	snap := e.policies.Snapshot()
	lowered := strings.ToLower(query)

	// Map iteration order is random; sort for a deterministic expansion.
	terms := snap.SynonymTerms()
	sort.Strings(terms)

	var additions []string
	present := lowered

	for _, term := range terms {
		if !strings.Contains(lowered, term) {
			continue
		}

		added := 0
		for _, syn := range snap.Synonyms(term) {
			if added == maxSynonymsPerTerm {
				break
			}
			if strings.Contains(present, strings.ToLower(syn)) {
				continue
			}
			additions = append(additions, syn)
			present += " " + strings.ToLower(syn)
			added++
		}
	}

	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}
