package poller

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/config"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/dispatch"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/eventlog"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/orchestrator"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/scraper"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/speechlab"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/state"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/storage"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/summarize"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/worker"
)

func newFixture(t *testing.T, skipBacklog bool) (*Poller, *scraper.FakeAgent, *state.Store, *dispatch.Queue[proto.MentionEvent]) {
	t.Helper()

	store, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	agent := scraper.NewFakeAgent()
	intake := dispatch.NewQueue(func(m proto.MentionEvent) string { return m.ID })
	return New(store, agent, intake, nil, skipBacklog), agent, store, intake
}

func TestPollEnqueuesNewMentions(t *testing.T) {
	p, agent, _, intake := newFixture(t, false)
	agent.Mentions = []proto.MentionEvent{
		{ID: "m1", Text: "@bot translate this"},
		{ID: "m2", Text: "@bot summarize this"},
	}

	p.Poll(context.Background())

	assert.Equal(t, 2, intake.Len())
	assert.True(t, intake.Contains("m1"))
	assert.True(t, intake.Contains("m2"))
}

func TestPollSkipsProcessedAndQueued(t *testing.T) {
	p, agent, store, intake := newFixture(t, false)
	require.NoError(t, store.MarkProcessed("done"))
	intake.Push(proto.MentionEvent{ID: "queued"})

	agent.Mentions = []proto.MentionEvent{
		{ID: "done"},
		{ID: "queued"},
		{ID: "fresh"},
	}

	p.Poll(context.Background())

	assert.Equal(t, 2, intake.Len(), "only queued + fresh should be enqueued")
	assert.True(t, intake.Contains("fresh"))
}

func TestPollDeduplicatesWithinBatch(t *testing.T) {
	p, agent, _, intake := newFixture(t, false)
	agent.Mentions = []proto.MentionEvent{{ID: "m1"}, {ID: "m1"}, {ID: "m1"}}

	p.Poll(context.Background())

	assert.Equal(t, 1, intake.Len())
}

func TestPollClosesOutTerminalJobMention(t *testing.T) {
	p, agent, store, intake := newFixture(t, false)

	// Simulate a crash after job completion but before the reply was
	// recorded: a terminal job references the mention, but the mention
	// is not in the processed set.
	_, err := store.UpsertJob("space-s1-en-to-en", state.JobPatch{MentionID: "m1"})
	require.NoError(t, err)
	status := proto.StatusProcessing
	_, err = store.UpsertJob("space-s1-en-to-en", state.JobPatch{Status: &status})
	require.NoError(t, err)
	terminal := proto.StatusComplete
	_, err = store.UpsertJob("space-s1-en-to-en", state.JobPatch{Status: &terminal})
	require.NoError(t, err)

	agent.Mentions = []proto.MentionEvent{{ID: "m1"}}
	p.Poll(context.Background())

	assert.Equal(t, 0, intake.Len())
	assert.True(t, store.IsProcessed("m1"), "terminal job mention should be closed out")
}

func TestPollLeavesInFlightJobMentionAlone(t *testing.T) {
	p, agent, store, intake := newFixture(t, false)

	_, err := store.UpsertJob("space-s2-en-to-en", state.JobPatch{MentionID: "m1"})
	require.NoError(t, err)

	agent.Mentions = []proto.MentionEvent{{ID: "m1"}}
	p.Poll(context.Background())

	assert.Equal(t, 0, intake.Len())
	assert.False(t, store.IsProcessed("m1"), "in-flight mention must stay unmarked")
}

func TestSkipBacklogMarksFirstScanOnly(t *testing.T) {
	p, agent, store, intake := newFixture(t, true)
	agent.Mentions = []proto.MentionEvent{{ID: "old1"}, {ID: "old2"}}

	p.Poll(context.Background())

	assert.Equal(t, 0, intake.Len())
	assert.True(t, store.IsProcessed("old1"))
	assert.True(t, store.IsProcessed("old2"))

	// The second scan behaves normally.
	agent.Mentions = append(agent.Mentions, proto.MentionEvent{ID: "new1"})
	p.Poll(context.Background())

	assert.Equal(t, 1, intake.Len())
	assert.True(t, intake.Contains("new1"))
}

// A job left Processing by a previous run must reach a reply and a
// processed mark after restart, without the mention ever being
// re-enqueued through intake.
func TestRestartResumesInFlightJob(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	ledger, err := eventlog.NewLedger(filepath.Join(dir, "errors.json"))
	require.NoError(t, err)

	// State as the prior run left it: submitted, Processing, unreplied.
	key := "space-s1-en-to-en"
	wf := proto.WorkflowDubbing
	st := proto.StatusProcessing
	jobID := "job-1"
	_, err = store.UpsertJob(key, state.JobPatch{Workflow: &wf, Status: &st, BackendJobID: &jobID, MentionID: "m1"})
	require.NoError(t, err)

	backend := speechlab.NewFakeClient()
	backend.Seed(&speechlab.JobSnapshot{
		ID: "job-1", ThirdPartyID: key, Status: speechlab.JobStatusComplete,
		Artifacts: []speechlab.Artifact{{Category: "audio", Format: "mp3", Direction: "output", URL: "https://cdn/out.mp3"}},
	})

	orch := orchestrator.New(store, backend, storage.NewFakeStore(), &summarize.FakeSummarizer{}, nil, config.Timing{
		CompletionCheck:   time.Millisecond,
		DubbingWait:       200 * time.Millisecond,
		TranscriptionWait: 200 * time.Millisecond,
	})
	agent := scraper.NewFakeAgent()
	agent.Mentions = []proto.MentionEvent{{ID: "m1", Text: "@bot dub this"}}

	sched := dispatch.NewScheduler(nil, nil, orch, nil, time.Hour, time.Hour)
	p := New(store, agent, sched.IntakeQueue(), nil, false)

	sched.ResumeInFlight(context.Background(), store.Jobs(), orch)

	// The scan during the resume window must leave the mention alone.
	p.Poll(context.Background())
	assert.Equal(t, 0, sched.IntakeQueue().Len())
	assert.False(t, store.IsProcessed("m1"))

	sched.WaitBackend()
	require.Equal(t, 1, sched.ReplyQueue().Len(), "resume must produce an outcome")
	outcome, _ := sched.ReplyQueue().Pop()
	assert.True(t, outcome.Success)
	assert.Equal(t, "m1", outcome.Mention.ID)

	worker.NewReplyWorker(agent, store, ledger, nil, nil).Process(context.Background(), outcome)

	assert.True(t, store.IsProcessed("m1"))
	require.Len(t, agent.Replies("m1"), 1)

	// Later scans skip the settled mention.
	p.Poll(context.Background())
	assert.Equal(t, 0, sched.IntakeQueue().Len())
}

func TestPollSwallowsScrapeFailure(t *testing.T) {
	p, agent, _, intake := newFixture(t, false)
	agent.ScrapeErr = errors.New("feed unavailable")

	p.Poll(context.Background())
	assert.Equal(t, 0, intake.Len())

	agent.ScrapeErr = nil
	agent.Mentions = []proto.MentionEvent{{ID: "m1"}}
	p.Poll(context.Background())
	assert.Equal(t, 1, intake.Len())
}
