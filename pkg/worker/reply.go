package worker

import (
	"context"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/eventlog"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/metrics"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/scraper"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/state"
)

// ReplyWorker posts the final reply for each outcome and settles the
// mention's durable fate.
//
// Marking rules differ by workflow. Summarization outcomes are marked
// processed whether they succeeded or failed: the backend is
// deterministic for a given recording, so a retry would just fail the
// same way. Dubbing outcomes are marked processed only on success,
// leaving a transiently failed dub reachable by a later mention of the
// same content. A failed reply post never marks anything, so the
// mention stays eligible for a future pass.
type ReplyWorker struct {
	agent    scraper.Agent
	store    *state.Store
	ledger   *eventlog.Ledger
	recorder *metrics.Recorder
	archiver JobArchiver
	logger   *logx.Logger
}

// JobArchiver receives terminal job records for offline history.
// Optional; nil disables archiving.
type JobArchiver interface {
	Archive(record *proto.JobRecord)
}

func NewReplyWorker(agent scraper.Agent, store *state.Store, ledger *eventlog.Ledger, recorder *metrics.Recorder, archiver JobArchiver) *ReplyWorker {
	return &ReplyWorker{
		agent:    agent,
		store:    store,
		ledger:   ledger,
		recorder: recorder,
		archiver: archiver,
		logger:   logx.NewLogger("reply"),
	}
}

// Process posts the reply for one outcome and updates durable state.
func (w *ReplyWorker) Process(ctx context.Context, outcome proto.Outcome) {
	mention := outcome.Mention
	text := ComposeReply(outcome)

	if err := w.agent.PostReply(ctx, mention, text); err != nil {
		w.logger.Error("reply post failed for mention %s: %v", mention.ID, err)
		if lErr := w.ledger.Record(mention.ID, proto.PhaseReply, err.Error()); lErr != nil {
			w.logger.Error("error ledger write failed for mention %s: %v", mention.ID, lErr)
		}
		if w.recorder != nil {
			w.recorder.ObserveReplyPost("error")
		}
		return
	}
	if w.recorder != nil {
		w.recorder.ObserveReplyPost("ok")
	}
	w.logger.Info("replied to mention %s (%s, success=%t)", mention.ID, outcome.Workflow, outcome.Success)

	w.settle(outcome)
	w.archive(outcome)
}

// archive snapshots the job's terminal record for offline history.
func (w *ReplyWorker) archive(outcome proto.Outcome) {
	if w.archiver == nil || outcome.IdempotencyKey == "" {
		return
	}
	record, ok := w.store.GetJob(outcome.IdempotencyKey)
	if !ok || !record.Status.IsTerminal() {
		return
	}
	w.archiver.Archive(record)
}

func (w *ReplyWorker) settle(outcome proto.Outcome) {
	mention := outcome.Mention

	mark := outcome.Success || outcome.Workflow == proto.WorkflowSummarization
	if !mark {
		// Failed dubbing stays retryable. No processed mark, no ledger
		// entry: the failure is already recorded on the JobRecord.
		w.logger.Info("mention %s left retryable after failed dubbing", mention.ID)
		return
	}

	if !outcome.Success {
		if err := w.ledger.Record(mention.ID, proto.PhaseBackend, failureReason(outcome)); err != nil {
			w.logger.Error("error ledger write failed for mention %s: %v", mention.ID, err)
		}
	}
	if err := w.store.MarkProcessed(mention.ID); err != nil {
		w.logger.Error("failed to mark mention %s processed: %v", mention.ID, err)
		return
	}
	if w.recorder != nil {
		result := "success"
		if !outcome.Success {
			result = "failure"
		}
		w.recorder.ObserveMentionProcessed(string(outcome.Workflow), result)
	}
}
