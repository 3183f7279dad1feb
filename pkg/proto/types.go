// Package proto defines the shared domain types exchanged between the
// poller, workers, and backend orchestrator.
package proto

import (
	"time"
)

// WorkflowKind selects which backend pipeline a mention is routed through.
type WorkflowKind string

const (
	// WorkflowDubbing is the audio-dubbing pipeline.
	WorkflowDubbing WorkflowKind = "dubbing"

	// WorkflowSummarization is the transcribe-then-summarize pipeline.
	WorkflowSummarization WorkflowKind = "summarization"
)

// MentionEvent is one externally observed request addressed to the bot.
// Immutable once produced by the scraper; ID is stable across re-scrapes.
type MentionEvent struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
}

// MediaRef points at playable media extracted from a mention's source page.
type MediaRef struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// JobRecord is the persisted status and metadata for one backend job,
// keyed by idempotency key. AssociatedMentionIDs grows but never shrinks.
type JobRecord struct {
	IdempotencyKey       string       `json:"idempotency_key"`
	BackendJobID         string       `json:"backend_job_id,omitempty"`
	Status               JobStatus    `json:"status"`
	Workflow             WorkflowKind `json:"workflow"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
	AssociatedMentionIDs []string     `json:"associated_mention_ids"`
}

// HasMention reports whether the record already tracks the given mention.
func (r *JobRecord) HasMention(mentionID string) bool {
	for _, id := range r.AssociatedMentionIDs {
		if id == mentionID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand records across goroutines.
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.AssociatedMentionIDs = append([]string(nil), r.AssociatedMentionIDs...)
	return &cp
}

// InitiationResult is the in-memory hand-off from the initiation worker to
// the backend orchestrator. Consumed exactly once, never persisted.
type InitiationResult struct {
	Mention    MentionEvent
	Media      MediaRef
	Workflow   WorkflowKind
	SourceLang string
	TargetLang string
}

// Outcome is the backend orchestrator's structured result for one mention,
// consumed exactly once by the reply worker.
type Outcome struct {
	Mention        MentionEvent
	Workflow       WorkflowKind
	Success        bool
	IdempotencyKey string
	BackendJobID   string
	ShareLink      string
	ArtifactURL    string
	SummaryText    string
	ErrorMessage   string
}

// ErrorPhase identifies which stage of the pipeline a failure occurred in.
type ErrorPhase string

const (
	// PhaseInitiation covers scraping and media acquisition failures.
	PhaseInitiation ErrorPhase = "initiation"
	// PhaseBackend covers job submission, polling, and artifact failures.
	PhaseBackend ErrorPhase = "backend"
	// PhaseReply covers reply composition and posting failures.
	PhaseReply ErrorPhase = "reply"
)

// ErrorLedgerEntry is a diagnostic record of a terminal mention failure.
type ErrorLedgerEntry struct {
	EntryID         string     `json:"entry_id"`
	Phase           ErrorPhase `json:"phase"`
	Message         string     `json:"message"`
	Timestamp       time.Time  `json:"timestamp"`
	OccurrenceCount int        `json:"occurrence_count"`
}
