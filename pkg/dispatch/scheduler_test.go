package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

type stubSource struct {
	mu    sync.Mutex
	polls int
}

func (s *stubSource) Poll(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
}

func (s *stubSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type stubInitiator struct {
	started chan string
	block   chan struct{}
	handoff bool
}

func (s *stubInitiator) Process(_ context.Context, mention proto.MentionEvent) (proto.InitiationResult, bool) {
	if s.started != nil {
		s.started <- mention.ID
	}
	if s.block != nil {
		<-s.block
	}
	return proto.InitiationResult{Mention: mention, Workflow: proto.WorkflowDubbing}, s.handoff
}

type stubBackend struct {
	fn func(proto.InitiationResult) proto.Outcome
}

func (s *stubBackend) Process(_ context.Context, res proto.InitiationResult) proto.Outcome {
	if s.fn != nil {
		return s.fn(res)
	}
	return proto.Outcome{Mention: res.Mention, Workflow: res.Workflow, Success: true}
}

type stubReplier struct {
	mu        sync.Mutex
	processed []string
	done      chan struct{}
}

func (s *stubReplier) Process(_ context.Context, outcome proto.Outcome) {
	s.mu.Lock()
	s.processed = append(s.processed, outcome.Mention.ID)
	s.mu.Unlock()
	if s.done != nil {
		s.done <- struct{}{}
	}
}

func (s *stubReplier) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

func newTestScheduler(init *stubInitiator, backend *stubBackend, replier *stubReplier) *Scheduler {
	return NewScheduler(&stubSource{}, init, backend, replier, time.Hour, time.Hour)
}

func TestDispatchPrefersInitiationOverReply(t *testing.T) {
	init := &stubInitiator{started: make(chan string, 1)}
	replier := &stubReplier{done: make(chan struct{}, 1)}
	s := newTestScheduler(init, &stubBackend{}, replier)

	s.IntakeQueue().Push(proto.MentionEvent{ID: "m1"})
	s.ReplyQueue().Push(proto.Outcome{Mention: proto.MentionEvent{ID: "m2"}})

	s.dispatch(context.Background())

	select {
	case id := <-init.started:
		assert.Equal(t, "m1", id)
	case <-time.After(time.Second):
		t.Fatal("initiation never started")
	}

	select {
	case <-replier.done:
		t.Fatal("reply dispatched on the same tick as initiation")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDispatchMutualExclusion(t *testing.T) {
	init := &stubInitiator{started: make(chan string, 1), block: make(chan struct{})}
	replier := &stubReplier{done: make(chan struct{}, 1)}
	s := newTestScheduler(init, &stubBackend{}, replier)

	s.IntakeQueue().Push(proto.MentionEvent{ID: "m1"})
	s.ReplyQueue().Push(proto.Outcome{Mention: proto.MentionEvent{ID: "m2"}})

	s.dispatch(context.Background())
	<-init.started

	// Initiation holds the session; further ticks must not start the
	// reply worker.
	s.dispatch(context.Background())
	s.dispatch(context.Background())
	select {
	case <-replier.done:
		t.Fatal("reply worker ran while initiation held the session")
	case <-time.After(20 * time.Millisecond):
	}

	close(init.block)

	// Once the session frees up, the queued reply goes out.
	require.Eventually(t, func() bool {
		s.dispatch(context.Background())
		select {
		case <-replier.done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m2"}, replier.ids())
}

func TestBackendHandoffFeedsReplyQueue(t *testing.T) {
	init := &stubInitiator{handoff: true}
	backend := &stubBackend{fn: func(res proto.InitiationResult) proto.Outcome {
		return proto.Outcome{Mention: res.Mention, Workflow: res.Workflow, Success: true, ShareLink: "https://share/x"}
	}}
	s := newTestScheduler(init, backend, &stubReplier{})

	s.IntakeQueue().Push(proto.MentionEvent{ID: "m1"})
	s.dispatch(context.Background())
	s.WaitBackend()

	require.Eventually(t, func() bool { return s.ReplyQueue().Len() == 1 }, time.Second, 5*time.Millisecond)
	outcome, ok := s.ReplyQueue().Pop()
	require.True(t, ok)
	assert.Equal(t, "m1", outcome.Mention.ID)
	assert.True(t, outcome.Success)
	assert.True(t, s.Guard().Idle(), "session must be released before backend work finishes")
}

func TestBackendPanicStillProducesOutcome(t *testing.T) {
	init := &stubInitiator{handoff: true}
	backend := &stubBackend{fn: func(proto.InitiationResult) proto.Outcome {
		panic("backend exploded")
	}}
	s := newTestScheduler(init, backend, &stubReplier{})

	s.IntakeQueue().Push(proto.MentionEvent{ID: "m1"})
	s.dispatch(context.Background())
	s.WaitBackend()

	outcome, ok := s.ReplyQueue().Pop()
	require.True(t, ok)
	assert.Equal(t, "m1", outcome.Mention.ID)
	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.ErrorMessage)
}

type stubResumer struct {
	mu      sync.Mutex
	resumed []string
}

func (s *stubResumer) Resume(_ context.Context, record *proto.JobRecord) proto.Outcome {
	s.mu.Lock()
	s.resumed = append(s.resumed, record.IdempotencyKey)
	s.mu.Unlock()

	mentionID := record.AssociatedMentionIDs[len(record.AssociatedMentionIDs)-1]
	return proto.Outcome{
		Mention:        proto.MentionEvent{ID: mentionID},
		Workflow:       record.Workflow,
		Success:        true,
		IdempotencyKey: record.IdempotencyKey,
	}
}

func TestResumeInFlightDispatchesOnlyNonTerminal(t *testing.T) {
	s := newTestScheduler(&stubInitiator{}, &stubBackend{}, &stubReplier{})
	resumer := &stubResumer{}

	records := map[string]*proto.JobRecord{
		"space-a-en-to-es": {
			IdempotencyKey:       "space-a-en-to-es",
			Status:               proto.StatusProcessing,
			Workflow:             proto.WorkflowDubbing,
			AssociatedMentionIDs: []string{"m1"},
		},
		"space-b-en-to-es": {
			IdempotencyKey:       "space-b-en-to-es",
			Status:               proto.StatusComplete,
			Workflow:             proto.WorkflowDubbing,
			AssociatedMentionIDs: []string{"m2"},
		},
		"space-c-en-to-es": {
			IdempotencyKey:       "space-c-en-to-es",
			Status:               proto.StatusProcessing,
			Workflow:             proto.WorkflowDubbing,
			AssociatedMentionIDs: nil,
		},
	}

	s.ResumeInFlight(context.Background(), records, resumer)
	s.WaitBackend()

	require.Equal(t, []string{"space-a-en-to-es"}, resumer.resumed,
		"terminal and mention-less records must not be resumed")
	require.Equal(t, 1, s.ReplyQueue().Len())
	outcome, _ := s.ReplyQueue().Pop()
	assert.Equal(t, "m1", outcome.Mention.ID)
}

func TestRunPollsAndStops(t *testing.T) {
	source := &stubSource{}
	s := NewScheduler(source, &stubInitiator{}, &stubBackend{}, &stubReplier{}, 10*time.Millisecond, 5*time.Millisecond)

	go s.Run(context.Background())

	require.Eventually(t, func() bool { return source.count() >= 2 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
