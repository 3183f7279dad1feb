// Package orchestrator drives one backend job per acquired mention: it
// derives the idempotency key, resolves or creates the backend job, polls to
// completion, collects artifacts, and returns a structured outcome. It never
// touches the interactive session, so any number of orchestrations may run
// concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/config"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/metrics"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/speechlab"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/state"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/storage"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/summarize"
)

// Orchestrator owns the backend half of the pipeline.
type Orchestrator struct {
	store      *state.Store
	backend    speechlab.Client
	objects    storage.Store
	summarizer summarize.Summarizer
	recorder   *metrics.Recorder
	timing     config.Timing
	tempDir    string
	logger     *logx.Logger
}

// New creates an orchestrator. recorder may be nil when metrics are disabled.
func New(store *state.Store, backend speechlab.Client, objects storage.Store,
	summarizer summarize.Summarizer, recorder *metrics.Recorder, timing config.Timing) *Orchestrator {
	return &Orchestrator{
		store:      store,
		backend:    backend,
		objects:    objects,
		summarizer: summarizer,
		recorder:   recorder,
		timing:     timing,
		tempDir:    filepath.Join(os.TempDir(), "spacesbot"),
		logger:     logx.NewLogger("orchestrator"),
	}
}

// Process runs one initiation result to a terminal outcome. It never returns
// an error: every failure is captured into the outcome so the mention is
// guaranteed a reply.
func (o *Orchestrator) Process(ctx context.Context, res proto.InitiationResult) proto.Outcome {
	switch res.Workflow {
	case proto.WorkflowSummarization:
		return o.processSummarization(ctx, res)
	default:
		return o.processDubbing(ctx, res)
	}
}

// Resume picks up a job a previous run left non-terminal. The original
// MentionEvent is gone, so a minimal one is rebuilt from the record's
// association and the idempotency key is taken from the record instead of
// re-derived. resolveJob then polls the recorded backend job, adopts one the
// backend knows under the key, or fails the job because the media needed for
// a fresh submission no longer exists.
func (o *Orchestrator) Resume(ctx context.Context, record *proto.JobRecord) proto.Outcome {
	mentionID := ""
	if n := len(record.AssociatedMentionIDs); n > 0 {
		mentionID = record.AssociatedMentionIDs[n-1]
	}
	res := proto.InitiationResult{
		Mention:  proto.MentionEvent{ID: mentionID},
		Workflow: record.Workflow,
	}
	o.logger.Info("Resuming job %s (%s) for mention %s", record.IdempotencyKey, record.Status, mentionID)

	if record.Workflow == proto.WorkflowSummarization {
		return o.runSummarization(ctx, res, record.IdempotencyKey)
	}
	return o.runDubbing(ctx, res, record.IdempotencyKey)
}

func (o *Orchestrator) failure(res proto.InitiationResult, key, jobID, message string) proto.Outcome {
	return proto.Outcome{
		Mention:        res.Mention,
		Workflow:       res.Workflow,
		Success:        false,
		IdempotencyKey: key,
		BackendJobID:   jobID,
		ErrorMessage:   message,
	}
}

func (o *Orchestrator) markStatus(key string, status proto.JobStatus, mentionID string) {
	if _, err := o.store.UpsertJob(key, state.JobPatch{Status: &status, MentionID: mentionID}); err != nil {
		o.logger.Error("Failed to persist status %s for %s: %v", status, key, err)
	}
}

// markFailure persists a failure status unless the error came from our own
// shutdown. A cancelled poll says nothing about the backend job, which keeps
// running; leaving the record non-terminal lets the next startup resume it.
func (o *Orchestrator) markFailure(ctx context.Context, key string, status proto.JobStatus, mentionID string) {
	if ctx.Err() != nil {
		o.logger.Info("Shutdown interrupted job %s, leaving status untouched for resume", key)
		return
	}
	o.markStatus(key, status, mentionID)
}

// resolveJob implements the submission check order: local record first, then
// the backend by key (covers a crash after submission but before local
// persistence), and only then a fresh submission via submit. It returns the
// job ID to poll and whether an already complete local record was found.
func (o *Orchestrator) resolveJob(ctx context.Context, res proto.InitiationResult, key string,
	initialStatus proto.JobStatus, submit func() (string, error)) (jobID string, complete bool, err error) {
	wf := res.Workflow

	if local, ok := o.store.GetJob(key); ok {
		switch {
		case local.Status == proto.StatusComplete || local.Status == proto.StatusCompleteSummary:
			o.logger.Info("Job %s already complete locally, reusing", key)
			if o.recorder != nil {
				o.recorder.ObserveJobReused()
			}
			// Still associate this mention with the job.
			if _, upErr := o.store.UpsertJob(key, state.JobPatch{MentionID: res.Mention.ID}); upErr != nil {
				o.logger.Warn("Failed to associate mention %s with %s: %v", res.Mention.ID, key, upErr)
			}
			return local.BackendJobID, true, nil
		case local.Status.IsFailure():
			o.logger.Info("Job %s failed previously (%s), retrying", key, local.Status)
			if _, resetErr := o.store.ResetJob(key, wf, res.Mention.ID); resetErr != nil {
				return "", false, fmt.Errorf("failed to reset job for retry: %w", resetErr)
			}
		case local.Status == proto.StatusInitiated && local.BackendJobID == "":
			// A prior run crashed between persisting the record and the
			// submission call. There may be nothing to poll, so resolve
			// against the backend below instead of waiting out the bound.
			o.logger.Info("Job %s has no recorded submission, resolving against backend", key)
		default:
			o.logger.Info("Job %s already in flight (%s), polling without submission", key, local.Status)
			if o.recorder != nil {
				o.recorder.ObserveJobReused()
			}
			if _, upErr := o.store.UpsertJob(key, state.JobPatch{MentionID: res.Mention.ID}); upErr != nil {
				o.logger.Warn("Failed to associate mention %s with %s: %v", res.Mention.ID, key, upErr)
			}
			return local.BackendJobID, false, nil
		}
	}

	// Persist a recoverable trail before any call that might hang.
	if _, err := o.store.UpsertJob(key, state.JobPatch{Workflow: &wf, MentionID: res.Mention.ID}); err != nil {
		return "", false, fmt.Errorf("failed to persist job record: %w", err)
	}

	// The backend may already know this key from a prior process.
	remote, err := o.backend.GetJobByThirdPartyID(ctx, key)
	if err == nil && remote != nil {
		o.logger.Info("Backend already has job %s for key %s, adopting", remote.ID, key)
		if o.recorder != nil {
			o.recorder.ObserveJobReused()
		}
		o.markStatus(key, initialStatus, res.Mention.ID)
		if _, upErr := o.store.UpsertJob(key, state.JobPatch{BackendJobID: &remote.ID}); upErr != nil {
			o.logger.Warn("Failed to persist adopted job ID for %s: %v", key, upErr)
		}
		return remote.ID, false, nil
	}
	if err != nil && !errors.Is(err, speechlab.ErrJobNotFound) {
		return "", false, fmt.Errorf("backend lookup for %s failed: %w", key, err)
	}

	newID, err := submit()
	if err != nil {
		return "", false, fmt.Errorf("submission failed: %w", err)
	}
	if o.recorder != nil {
		o.recorder.ObserveJobSubmitted(string(wf))
	}
	o.markStatus(key, initialStatus, res.Mention.ID)
	if _, upErr := o.store.UpsertJob(key, state.JobPatch{BackendJobID: &newID}); upErr != nil {
		o.logger.Warn("Failed to persist job ID for %s: %v", key, upErr)
	}
	return newID, false, nil
}

func (o *Orchestrator) processDubbing(ctx context.Context, res proto.InitiationResult) proto.Outcome {
	key := DubbingKey(res.Mention, res.SourceLang, res.TargetLang)
	return o.runDubbing(ctx, res, key)
}

func (o *Orchestrator) runDubbing(ctx context.Context, res proto.InitiationResult, key string) proto.Outcome {
	o.logger.Info("Dubbing mention %s under key %s", res.Mention.ID, key)

	jobID, complete, err := o.resolveJob(ctx, res, key, proto.StatusProcessing, func() (string, error) {
		if res.Media.URL == "" {
			return "", fmt.Errorf("media for %s is no longer available, cannot submit", key)
		}
		return o.backend.CreateDubbing(ctx, speechlab.DubbingParams{
			Name:         "space " + ContentID(res.Mention),
			MediaURL:     res.Media.URL,
			SourceLang:   res.SourceLang,
			TargetLang:   res.TargetLang,
			ThirdPartyID: key,
		})
	})
	if err != nil {
		o.markFailure(ctx, key, proto.StatusFailed, res.Mention.ID)
		return o.failure(res, key, "", err.Error())
	}

	var snapshot *speechlab.JobSnapshot
	if complete {
		// Short-circuit: fetch the finished job's payload without waiting.
		snapshot, err = o.backend.GetJobByThirdPartyID(ctx, key)
		if err != nil {
			o.logger.Warn("Reused job %s but snapshot fetch failed: %v", key, err)
			return o.success(res, key, jobID, "", "")
		}
	} else {
		start := time.Now()
		snapshot, err = o.waitForCompletion(ctx, key, jobID, o.timing.DubbingWait, o.timing.CompletionCheck)
		o.observePoll(proto.WorkflowDubbing, start, err)
		if err != nil {
			o.markFailure(ctx, key, proto.StatusFailed, res.Mention.ID)
			return o.failure(res, key, jobID, err.Error())
		}
	}

	if snapshot.ID != "" {
		jobID = snapshot.ID
	}
	o.markStatus(key, proto.StatusComplete, res.Mention.ID)

	artifactURL := o.publishArtifact(ctx, key, snapshot)

	shareLink := ""
	if jobID != "" {
		link, linkErr := o.backend.GenerateSharingLink(ctx, jobID)
		if linkErr != nil {
			// Degrade gracefully: the reply simply omits the link.
			o.logger.Warn("Sharing link for %s failed: %v", jobID, linkErr)
		} else {
			shareLink = link
		}
	}

	return o.success(res, key, jobID, artifactURL, shareLink)
}

func (o *Orchestrator) success(res proto.InitiationResult, key, jobID, artifactURL, shareLink string) proto.Outcome {
	return proto.Outcome{
		Mention:        res.Mention,
		Workflow:       res.Workflow,
		Success:        true,
		IdempotencyKey: key,
		BackendJobID:   jobID,
		ArtifactURL:    artifactURL,
		ShareLink:      shareLink,
	}
}

// publishArtifact downloads the dubbed output audio and re-uploads it to
// public storage. Every step may fail independently; a missing artifact
// degrades the reply rather than failing the job. Temp files are always
// removed.
func (o *Orchestrator) publishArtifact(ctx context.Context, key string, snapshot *speechlab.JobSnapshot) string {
	audio := snapshot.OutputAudio()
	if audio == nil {
		o.logger.Warn("Job %s completed without an output audio artifact", key)
		return ""
	}

	localPath := filepath.Join(o.tempDir, key+".mp3")
	defer func() {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			o.logger.Warn("Failed to remove temp file %s: %v", localPath, err)
		}
	}()

	if err := o.objects.Download(ctx, audio.URL, localPath); err != nil {
		o.logger.Error("Artifact download for %s failed: %v", key, err)
		return ""
	}

	publicURL, err := o.objects.Upload(ctx, localPath, key+".mp3")
	if err != nil {
		o.logger.Error("Artifact upload for %s failed: %v", key, err)
		return ""
	}
	return publicURL
}

func (o *Orchestrator) processSummarization(ctx context.Context, res proto.InitiationResult) proto.Outcome {
	key := SummarizationKey(res.Mention)
	return o.runSummarization(ctx, res, key)
}

func (o *Orchestrator) runSummarization(ctx context.Context, res proto.InitiationResult, key string) proto.Outcome {
	o.logger.Info("Summarizing mention %s under key %s", res.Mention.ID, key)

	jobID, complete, err := o.resolveJob(ctx, res, key, proto.StatusTranscribing, func() (string, error) {
		if res.Media.URL == "" {
			return "", fmt.Errorf("media for %s is no longer available, cannot submit", key)
		}
		return o.backend.CreateTranscription(ctx, speechlab.TranscriptionParams{
			Name:         "space " + ContentID(res.Mention),
			MediaURL:     res.Media.URL,
			SourceLang:   res.SourceLang,
			ThirdPartyID: key,
		})
	})
	if err != nil {
		o.markFailure(ctx, key, proto.StatusFailedTranscription, res.Mention.ID)
		return o.failure(res, key, "", err.Error())
	}

	var snapshot *speechlab.JobSnapshot
	if complete {
		snapshot, err = o.backend.GetJobByThirdPartyID(ctx, key)
	} else {
		start := time.Now()
		snapshot, err = o.waitForCompletion(ctx, key, jobID, o.timing.TranscriptionWait, o.timing.CompletionCheck)
		o.observePoll(proto.WorkflowSummarization, start, err)
	}
	if err != nil {
		o.markFailure(ctx, key, proto.StatusFailedTranscription, res.Mention.ID)
		return o.failure(res, key, jobID, "transcription did not complete: "+err.Error())
	}

	if snapshot.ID != "" {
		jobID = snapshot.ID
	}
	if snapshot.Transcription == "" {
		o.markFailure(ctx, key, proto.StatusFailedTranscription, res.Mention.ID)
		return o.failure(res, key, jobID, "transcription completed without text")
	}

	o.markStatus(key, proto.StatusSummarizing, res.Mention.ID)

	summary, err := o.summarizer.Summarize(ctx, snapshot.Transcription)
	if err != nil {
		o.markFailure(ctx, key, proto.StatusFailedSummarization, res.Mention.ID)
		return o.failure(res, key, jobID, "summarization failed: "+err.Error())
	}

	o.markStatus(key, proto.StatusCompleteSummary, res.Mention.ID)
	outcome := o.success(res, key, jobID, "", "")
	outcome.SummaryText = summary
	return outcome
}

func (o *Orchestrator) observePoll(wf proto.WorkflowKind, start time.Time, err error) {
	if o.recorder == nil {
		return
	}
	result := "complete"
	switch {
	case errors.Is(err, ErrPollTimeout):
		result = "timeout"
	case err != nil:
		result = "failed"
	}
	o.recorder.ObservePoll(string(wf), result, time.Since(start))
}
