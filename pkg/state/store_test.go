package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return s
}

func TestMarkProcessedIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.MarkProcessed("m1"))
	require.NoError(t, s.MarkProcessed("m1"))

	assert.True(t, s.IsProcessed("m1"))
	assert.False(t, s.IsProcessed("m2"))
	assert.Equal(t, 1, s.ProcessedCount())
}

func TestProcessedSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessed("m1"))
	require.NoError(t, s.MarkProcessed("m2"))

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsProcessed("m1"))
	assert.True(t, reloaded.IsProcessed("m2"))
	assert.Equal(t, 2, reloaded.ProcessedCount())
}

func TestLegacyArrayMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`["m1","m2"]`), 0644))

	s, err := NewStore(path)
	require.NoError(t, err)
	assert.True(t, s.IsProcessed("m1"))
	assert.True(t, s.IsProcessed("m2"))

	// First write should persist the migrated document shape.
	require.NoError(t, s.MarkProcessed("m3"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "mentions")
	assert.Contains(t, doc, "projects")
}

func TestCorruptFileReinitializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	s, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.ProcessedCount())
	require.NoError(t, s.MarkProcessed("m1"))
	assert.True(t, s.IsProcessed("m1"))
}

func TestUpsertJobCreatesAndMerges(t *testing.T) {
	s := newTestStore(t)

	wf := proto.WorkflowDubbing
	rec, err := s.UpsertJob("space-x-en-to-es", JobPatch{Workflow: &wf, MentionID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, proto.StatusInitiated, rec.Status)
	assert.Equal(t, []string{"m1"}, rec.AssociatedMentionIDs)
	assert.False(t, rec.CreatedAt.IsZero())

	jobID := "job-123"
	st := proto.StatusProcessing
	rec, err = s.UpsertJob("space-x-en-to-es", JobPatch{BackendJobID: &jobID, Status: &st, MentionID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, "job-123", rec.BackendJobID)
	assert.Equal(t, proto.StatusProcessing, rec.Status)
	assert.Equal(t, []string{"m1", "m2"}, rec.AssociatedMentionIDs)

	// Re-adding an associated mention must not duplicate it.
	rec, err = s.UpsertJob("space-x-en-to-es", JobPatch{MentionID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, rec.AssociatedMentionIDs)
}

func TestUpsertJobDropsStatusRegression(t *testing.T) {
	s := newTestStore(t)

	st := proto.StatusProcessing
	_, err := s.UpsertJob("key", JobPatch{Status: &st})
	require.NoError(t, err)

	back := proto.StatusInitiated
	rec, err := s.UpsertJob("key", JobPatch{Status: &back})
	require.NoError(t, err)
	assert.Equal(t, proto.StatusProcessing, rec.Status, "regression must be dropped, not applied")

	done := proto.StatusComplete
	rec, err = s.UpsertJob("key", JobPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, proto.StatusComplete, rec.Status)

	// Terminal states accept no further moves.
	failed := proto.StatusFailed
	rec, err = s.UpsertJob("key", JobPatch{Status: &failed})
	require.NoError(t, err)
	assert.Equal(t, proto.StatusComplete, rec.Status)
}

func TestFindJobByMention(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertJob("key-a", JobPatch{MentionID: "m1"})
	require.NoError(t, err)
	_, err = s.UpsertJob("key-b", JobPatch{MentionID: "m2"})
	require.NoError(t, err)

	rec := s.FindJobByMention("m2")
	require.NotNil(t, rec)
	assert.Equal(t, "key-b", rec.IdempotencyKey)

	assert.Nil(t, s.FindJobByMention("m3"))
}

func TestJobsSurviveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	wf := proto.WorkflowSummarization
	st := proto.StatusTranscribing
	_, err = s.UpsertJob("summary-c1-m0001", JobPatch{Workflow: &wf, Status: &st, MentionID: "m1"})
	require.NoError(t, err)

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	rec, ok := reloaded.GetJob("summary-c1-m0001")
	require.True(t, ok)
	assert.Equal(t, proto.StatusTranscribing, rec.Status)
	assert.Equal(t, proto.WorkflowSummarization, rec.Workflow)
	assert.True(t, rec.HasMention("m1"))
}

func TestClonesAreIsolated(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertJob("key", JobPatch{MentionID: "m1"})
	require.NoError(t, err)

	rec, _ := s.GetJob("key")
	rec.AssociatedMentionIDs = append(rec.AssociatedMentionIDs, "m-injected")
	rec.Status = proto.StatusFailed

	fresh, _ := s.GetJob("key")
	assert.Equal(t, []string{"m1"}, fresh.AssociatedMentionIDs)
	assert.Equal(t, proto.StatusInitiated, fresh.Status)
}
