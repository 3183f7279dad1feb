package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/limiter"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// IntakeSource scans the upstream feed and pushes new mentions into the
// intake queue. One invocation per poll interval.
type IntakeSource interface {
	Poll(ctx context.Context)
}

// Initiator handles a freshly dequeued mention while holding the
// browser session. The returned bool is true when the mention should be
// handed off to the backend runner.
type Initiator interface {
	Process(ctx context.Context, mention proto.MentionEvent) (proto.InitiationResult, bool)
}

// BackendRunner drives the dubbing or summarization job to a terminal
// state. It does not touch the browser session and may run for hours.
type BackendRunner interface {
	Process(ctx context.Context, res proto.InitiationResult) proto.Outcome
}

// Replier posts the final reply for an outcome while holding the
// browser session.
type Replier interface {
	Process(ctx context.Context, outcome proto.Outcome)
}

// Resumer drives a job a previous run left non-terminal back to a
// terminal outcome.
type Resumer interface {
	Resume(ctx context.Context, record *proto.JobRecord) proto.Outcome
}

// Scheduler runs the two timer loops: a slow poll loop feeding the
// intake queue and a fast tick loop that dispatches at most one worker
// per tick. Initiation work always wins over reply work, and both
// share one SessionGuard so the browser session never has two users.
type Scheduler struct {
	guard   *limiter.SessionGuard
	intake  *Queue[proto.MentionEvent]
	replies *Queue[proto.Outcome]

	source    IntakeSource
	initiator Initiator
	backend   BackendRunner
	replier   Replier

	pollInterval time.Duration
	tick         time.Duration

	logger *logx.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	// backendWG tracks in-flight backend hand-offs so tests can drain
	// them. Stop does not wait on it: jobs survive in the store and are
	// re-adopted on restart.
	backendWG sync.WaitGroup
}

// NewScheduler wires the scheduler. The queues are created here so the
// intake source can be handed IntakeQueue for membership checks.
func NewScheduler(source IntakeSource, initiator Initiator, backend BackendRunner, replier Replier, pollInterval, tick time.Duration) *Scheduler {
	return &Scheduler{
		guard:        limiter.NewSessionGuard(),
		intake:       NewQueue(func(m proto.MentionEvent) string { return m.ID }),
		replies:      NewQueue(func(o proto.Outcome) string { return o.Mention.ID }),
		source:       source,
		initiator:    initiator,
		backend:      backend,
		replier:      replier,
		pollInterval: pollInterval,
		tick:         tick,
		logger:       logx.NewLogger("dispatch"),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// SetSource installs the intake source. Must be called before Run when
// the scheduler was constructed with a nil source; the poller needs the
// scheduler's intake queue, so it is built second.
func (s *Scheduler) SetSource(source IntakeSource) {
	s.source = source
}

// IntakeQueue exposes the mention queue so the poller can check
// membership before enqueueing.
func (s *Scheduler) IntakeQueue() *Queue[proto.MentionEvent] {
	return s.intake
}

// ReplyQueue exposes the outcome queue, mainly for tests and for the
// backend hand-off goroutine.
func (s *Scheduler) ReplyQueue() *Queue[proto.Outcome] {
	return s.replies
}

// Guard exposes the session guard for status reporting.
func (s *Scheduler) Guard() *limiter.SessionGuard {
	return s.guard
}

// Run blocks until Stop is called or ctx is cancelled. The first poll
// fires immediately so a fresh deployment does not idle for a full
// interval before seeing its backlog.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	s.logger.Info("scheduler running: poll every %s, dispatch tick %s", s.pollInterval, s.tick)

	s.source.Poll(ctx)

	pollTimer := time.NewTicker(s.pollInterval)
	defer pollTimer.Stop()
	dispatchTimer := time.NewTicker(s.tick)
	defer dispatchTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping: %v", ctx.Err())
			return
		case <-s.stopCh:
			s.logger.Info("scheduler stopping: stop requested")
			return
		case <-pollTimer.C:
			s.source.Poll(ctx)
		case <-dispatchTimer.C:
			s.dispatch(ctx)
		}
	}
}

// Stop halts the timer loops. In-flight initiation or reply work
// finishes its current item; queued items stay queued and are lost with
// the process (mentions are rediscovered from the processed-ID set on
// the next run).
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// dispatch starts at most one worker. Initiation takes priority so a
// backlog of finished outcomes cannot starve new mentions.
func (s *Scheduler) dispatch(ctx context.Context) {
	if !s.guard.Idle() {
		return
	}

	if s.intake.Len() > 0 {
		if s.guard.TryAcquire(limiter.SlotInitiation) {
			go s.runInitiation(ctx)
		}
		return
	}

	if s.replies.Len() > 0 {
		if s.guard.TryAcquire(limiter.SlotReply) {
			go s.runReply(ctx)
		}
	}
}

func (s *Scheduler) runInitiation(ctx context.Context) {
	mention, ok := s.intake.Pop()
	if !ok {
		s.release(limiter.SlotInitiation)
		return
	}

	res, handoff := s.initiator.Process(ctx, mention)

	// The session is needed only for media acquisition and the
	// acknowledgement, both inside Process. Release before the
	// long-running backend work so replies are not blocked for hours.
	s.release(limiter.SlotInitiation)

	if !handoff {
		return
	}

	s.backendWG.Add(1)
	go func() {
		defer s.backendWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("backend hand-off panicked for mention %s: %v", mention.ID, r)
				s.replies.Push(proto.Outcome{
					Mention:      mention,
					Workflow:     res.Workflow,
					Success:      false,
					ErrorMessage: "internal error during backend processing",
				})
			}
		}()
		outcome := s.backend.Process(ctx, res)
		if !s.replies.Push(outcome) {
			s.logger.Warn("outcome for mention %s already queued, dropping duplicate", mention.ID)
		}
	}()
}

func (s *Scheduler) runReply(ctx context.Context) {
	defer s.release(limiter.SlotReply)

	outcome, ok := s.replies.Pop()
	if !ok {
		return
	}
	s.replier.Process(ctx, outcome)
}

// ResumeInFlight re-dispatches backend jobs a previous run left
// non-terminal. Each resume runs like a normal backend hand-off: its
// own goroutine, outcome pushed to the reply queue. Called once at
// startup, before Run; the poller's in-flight skip relies on these
// jobs having an owner again.
func (s *Scheduler) ResumeInFlight(ctx context.Context, records map[string]*proto.JobRecord, resumer Resumer) {
	resumed := 0
	for key, record := range records {
		if record.Status.IsTerminal() {
			continue
		}
		if len(record.AssociatedMentionIDs) == 0 {
			s.logger.Warn("in-flight job %s has no associated mentions, skipping resume", key)
			continue
		}
		resumed++
		s.logger.Info("resuming in-flight job %s (%s)", key, record.Status)

		rec := record
		s.backendWG.Add(1)
		go func() {
			defer s.backendWG.Done()
			outcome := resumer.Resume(ctx, rec)
			if !s.replies.Push(outcome) {
				s.logger.Warn("outcome for resumed job %s already queued, dropping duplicate", rec.IdempotencyKey)
			}
		}()
	}
	if resumed > 0 {
		s.logger.Info("resumed %d in-flight job(s) from a previous run", resumed)
	}
}

// WaitBackend blocks until all in-flight backend hand-offs finish.
// Test hook.
func (s *Scheduler) WaitBackend() {
	s.backendWG.Wait()
}

func (s *Scheduler) release(slot limiter.Slot) {
	if err := s.guard.Release(slot); err != nil {
		s.logger.Error("session release failed: %v", err)
	}
}
