package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

func testRecord(key string, status proto.JobStatus) *proto.JobRecord {
	now := time.Now().UTC()
	return &proto.JobRecord{
		IdempotencyKey:       key,
		BackendJobID:         "job-1",
		Status:               status,
		Workflow:             proto.WorkflowDubbing,
		CreatedAt:            now,
		UpdatedAt:            now,
		AssociatedMentionIDs: []string{"m1", "m2"},
	}
}

func TestArchiveAndHistory(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	a.Archive(testRecord("space-s1-en-to-es", proto.StatusComplete))

	require.Eventually(t, func() bool {
		jobs, err := a.History()
		return err == nil && len(jobs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	jobs, err := a.History()
	require.NoError(t, err)
	assert.Equal(t, "space-s1-en-to-es", jobs[0].IdempotencyKey)
	assert.Equal(t, "job-1", jobs[0].BackendJobID)
	assert.Equal(t, string(proto.StatusComplete), jobs[0].Status)
	assert.Equal(t, []string{"m1", "m2"}, jobs[0].MentionIDs)
}

func TestArchiveUpsertsByKey(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	a.Archive(testRecord("space-s1-en-to-es", proto.StatusFailed))
	a.Archive(testRecord("space-s1-en-to-es", proto.StatusComplete))

	require.Eventually(t, func() bool {
		jobs, err := a.History()
		return err == nil && len(jobs) == 1 && jobs[0].Status == string(proto.StatusComplete)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestArchiveNilIsNoop(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)

	a.Archive(nil)
	require.NoError(t, a.Close())
}

func TestCloseDrainsPendingWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		a.Archive(testRecord("space-s1-en-to-es", proto.StatusComplete))
	}
	require.NoError(t, a.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	jobs, err := reopened.History()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
