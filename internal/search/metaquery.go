package search

import (
	"github.com/finova/kbretrieval/internal/policy"
)

// MetaQueryFilter short-circuits non-informational queries (agent
// requests, greetings, account-closure demands) before any retrieval.
// These utterances must never be answered from the knowledge base; an
// empty result routes them to escalation upstream.
type MetaQueryFilter struct {
	policies *policy.Store
}

// NewMetaQueryFilter creates a filter backed by the policy store.
func NewMetaQueryFilter(policies *policy.Store) *MetaQueryFilter {
	return &MetaQueryFilter{policies: policies}
}

// Matches reports whether the raw query is a meta-query.
func (f *MetaQueryFilter) Matches(query string) bool {
	return f.policies.Snapshot().IsMetaQuery(query)
}
