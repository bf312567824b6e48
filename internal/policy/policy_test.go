package policy

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicyYAML = `
meta_queries:
  phrases:
    - "connect me to an agent"
    - "speak to a human"
  patterns:
    - '^\s*(hi|hello)[\s!.,]*$'
synonyms:
  card: ["debit card", "credit card"]
  fee: ["charge", "cost"]
`

func TestStore_EmbeddedDefaults(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)

	snap := s.Snapshot()
	require.NotNil(t, snap)

	assert.True(t, snap.IsMetaQuery("please CONNECT me to an AGENT now"))
	assert.NotEmpty(t, snap.Synonyms("card"))
	assert.NotEmpty(t, snap.SynonymTerms())
}

func TestSnapshot_IsMetaQuery(t *testing.T) {
	snap, err := parse([]byte(testPolicyYAML))
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"phrase match", "can you connect me to an agent", true},
		{"phrase is case-insensitive", "SPEAK TO A HUMAN", true},
		{"regex greeting", "  Hello!  ", true},
		{"informational query", "how do I block my card", false},
		{"greeting embedded in a question is not a match", "hello fees for transfers", false},
		{"empty query", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snap.IsMetaQuery(tt.query))
		})
	}
}

func TestSnapshot_Synonyms(t *testing.T) {
	snap, err := parse([]byte(testPolicyYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"debit card", "credit card"}, snap.Synonyms("card"))
	assert.Nil(t, snap.Synonyms("mortgage"))
}

func TestParse_InvalidPattern(t *testing.T) {
	_, err := parse([]byte("meta_queries:\n  patterns:\n    - '['\n"))
	assert.Error(t, err)
}

func TestStore_ReloadKeepsOldSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicyYAML), 0o644))

	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(":: not yaml ::"), 0o644))
	assert.Error(t, s.Reload())

	// Previous snapshot stays active.
	assert.True(t, s.Snapshot().IsMetaQuery("speak to a human"))
}

func TestStore_MissingFile(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestStore_WatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicyYAML), 0o644))

	s, err := NewStore(path)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stop, err := s.Watch(logger)
	require.NoError(t, err)
	defer stop()

	updated := testPolicyYAML + "\n  mortgage: [\"home loan\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		return s.Snapshot().Synonyms("mortgage") != nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStore_WatchNoopWithoutPath(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)

	stop, err := s.Watch(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	stop()
}
