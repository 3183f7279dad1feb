// Package worker holds the two session-bound consumers: the initiation
// worker (media acquisition + acknowledgement) and the reply worker
// (final reply post + terminal bookkeeping). Both run under the
// dispatch scheduler's session guard, never concurrently.
package worker

import (
	"context"
	"strings"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/eventlog"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/metrics"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/scraper"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/state"
)

// summarizeSignal routes a mention to the transcribe-and-summarize
// pipeline instead of the default dubbing pipeline.
const summarizeSignal = "summarize"

// ClassifyWorkflow picks the pipeline from the mention text.
func ClassifyWorkflow(text string) proto.WorkflowKind {
	if strings.Contains(strings.ToLower(text), summarizeSignal) {
		return proto.WorkflowSummarization
	}
	return proto.WorkflowDubbing
}

// InitiationWorker consumes one mention at a time: classify, acquire
// the playable media, acknowledge. Acquisition failure is terminal for
// the mention (apology + processed mark); there is nothing to retry
// when the content has no playable audio.
type InitiationWorker struct {
	agent    scraper.Agent
	store    *state.Store
	ledger   *eventlog.Ledger
	recorder *metrics.Recorder
	logger   *logx.Logger

	sourceLang string
	targetLang string
}

func NewInitiationWorker(agent scraper.Agent, store *state.Store, ledger *eventlog.Ledger, recorder *metrics.Recorder, sourceLang, targetLang string) *InitiationWorker {
	return &InitiationWorker{
		agent:      agent,
		store:      store,
		ledger:     ledger,
		recorder:   recorder,
		logger:     logx.NewLogger("initiation"),
		sourceLang: sourceLang,
		targetLang: targetLang,
	}
}

// Process handles one dequeued mention. The bool is true when the
// mention should be handed off to the backend orchestrator.
func (w *InitiationWorker) Process(ctx context.Context, mention proto.MentionEvent) (proto.InitiationResult, bool) {
	workflow := ClassifyWorkflow(mention.Text)
	w.logger.Info("initiating mention %s from @%s as %s", mention.ID, mention.Author, workflow)

	media, err := w.agent.AcquireMedia(ctx, mention)
	if err != nil {
		w.failAcquisition(ctx, mention, workflow, err)
		return proto.InitiationResult{}, false
	}

	// Best effort: a lost acknowledgement does not block the pipeline.
	if ackErr := w.agent.PostReply(ctx, mention, acknowledgementText(workflow)); ackErr != nil {
		w.logger.Warn("acknowledgement for mention %s failed: %v", mention.ID, ackErr)
	}

	return proto.InitiationResult{
		Mention:    mention,
		Media:      media,
		Workflow:   workflow,
		SourceLang: w.sourceLang,
		TargetLang: w.targetLang,
	}, true
}

func (w *InitiationWorker) failAcquisition(ctx context.Context, mention proto.MentionEvent, workflow proto.WorkflowKind, cause error) {
	w.logger.Error("media acquisition failed for mention %s: %v", mention.ID, cause)

	apology := "Sorry, I couldn't find playable audio for this Space, so I can't process it."
	if err := w.agent.PostReply(ctx, mention, apology); err != nil {
		w.logger.Warn("apology for mention %s failed: %v", mention.ID, err)
	}

	if err := w.ledger.Record(mention.ID, proto.PhaseInitiation, cause.Error()); err != nil {
		w.logger.Error("error ledger write failed for mention %s: %v", mention.ID, err)
	}
	if err := w.store.MarkProcessed(mention.ID); err != nil {
		w.logger.Error("failed to mark mention %s processed: %v", mention.ID, err)
	}
	if w.recorder != nil {
		w.recorder.ObserveMentionProcessed(string(workflow), "acquisition_failed")
	}
}

func acknowledgementText(workflow proto.WorkflowKind) string {
	if workflow == proto.WorkflowSummarization {
		return "On it! I'm transcribing and summarizing this Space and will reply with the summary when it's ready."
	}
	return "On it! I'm dubbing this Space and will reply with the translated audio when it's ready. This can take a while for long recordings."
}
