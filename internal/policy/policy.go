// Package policy loads and serves the retrieval policy data: meta-query
// patterns that bypass retrieval, and the domain synonym table used for
// query expansion. The data lives in versioned YAML owned by the support
// domain team rather than in code, with an embedded default for
// zero-config startup.
package policy

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/finova/kbretrieval/configs"
	"github.com/finova/kbretrieval/internal/kberr"
)

// fileData is the on-disk YAML shape.
type fileData struct {
	MetaQueries struct {
		Phrases  []string `yaml:"phrases"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"meta_queries"`
	Synonyms map[string][]string `yaml:"synonyms"`
}

// Snapshot is an immutable, compiled view of the policy. Callers obtain
// one per query and may use it without further locking.
type Snapshot struct {
	phrases  []string // lower-cased substrings
	patterns []*regexp.Regexp
	synonyms map[string][]string // lower-cased keys
}

// IsMetaQuery reports whether the query matches any configured phrase
// (case-insensitive substring) or pattern.
func (s *Snapshot) IsMetaQuery(query string) bool {
	lowered := strings.ToLower(query)
	for _, phrase := range s.phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	for _, pattern := range s.patterns {
		if pattern.MatchString(query) {
			return true
		}
	}
	return false
}

// Synonyms returns the synonym list for a lower-cased term, or nil.
func (s *Snapshot) Synonyms(term string) []string {
	return s.synonyms[term]
}

// SynonymTerms returns all configured synonym keys.
func (s *Snapshot) SynonymTerms() []string {
	terms := make([]string, 0, len(s.synonyms))
	for term := range s.synonyms {
		terms = append(terms, term)
	}
	return terms
}

// compile validates and lowers the raw file data into a Snapshot.
func compile(data *fileData) (*Snapshot, error) {
	snap := &Snapshot{
		synonyms: make(map[string][]string, len(data.Synonyms)),
	}

	for _, phrase := range data.MetaQueries.Phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			snap.phrases = append(snap.phrases, phrase)
		}
	}

	for _, raw := range data.MetaQueries.Patterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return nil, fmt.Errorf("invalid meta-query pattern %q: %w", raw, err)
		}
		snap.patterns = append(snap.patterns, re)
	}

	for term, syns := range data.Synonyms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || len(syns) == 0 {
			continue
		}
		snap.synonyms[term] = syns
	}

	return snap, nil
}

// parse unmarshals YAML policy bytes into a compiled Snapshot.
func parse(raw []byte) (*Snapshot, error) {
	var data fileData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse policy yaml: %w", err)
	}
	return compile(&data)
}

// Store holds the current policy snapshot and swaps it atomically on
// reload. Reads never block behind a reload.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
	path string
}

// NewStore loads the policy from path, or from the embedded default when
// path is empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current compiled policy.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Path returns the policy file path ("" means embedded defaults).
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the policy source and swaps the snapshot. On failure
// the previous snapshot stays active and the error is returned.
func (s *Store) Reload() error {
	var raw []byte
	if s.path == "" {
		raw = []byte(configs.DefaultPolicyTemplate)
	} else {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return kberr.ConfigurationError(fmt.Sprintf("cannot read policy file %s", s.path), err)
		}
		raw = data
	}

	snap, err := parse(raw)
	if err != nil {
		return kberr.ConfigurationError("policy file is invalid", err)
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}
