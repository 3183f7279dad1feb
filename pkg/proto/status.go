package proto

import (
	"fmt"
)

// JobStatus is the lifecycle state of a backend job as tracked locally.
type JobStatus string

const (
	// StatusInitiated means the job record exists but no backend confirmation yet.
	StatusInitiated JobStatus = "INITIATED"
	// StatusProcessing means the dubbing backend accepted the job.
	StatusProcessing JobStatus = "PROCESSING"
	// StatusTranscribing means the transcription phase is running.
	StatusTranscribing JobStatus = "TRANSCRIBING"
	// StatusSummarizing means transcription finished and summarization is running.
	StatusSummarizing JobStatus = "SUMMARIZING"
	// StatusComplete is the terminal success state for dubbing jobs.
	StatusComplete JobStatus = "COMPLETE"
	// StatusCompleteSummary is the terminal success state for summarization jobs.
	StatusCompleteSummary JobStatus = "COMPLETE_SUMMARY"
	// StatusFailed is the terminal failure state for dubbing jobs.
	StatusFailed JobStatus = "FAILED"
	// StatusFailedTranscription marks a summarization job that died transcribing.
	StatusFailedTranscription JobStatus = "FAILED_TRANSCRIPTION"
	// StatusFailedSummarization marks a summarization job whose summary call failed.
	StatusFailedSummarization JobStatus = "FAILED_SUMMARIZATION"
)

// ErrInvalidTransition is returned when a status change would move backward.
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

// ValidTransitions enumerates every permitted forward transition. Terminal
// states have no outgoing edges.
var ValidTransitions = map[JobStatus][]JobStatus{
	StatusInitiated: {
		StatusProcessing, StatusTranscribing,
		StatusFailed, StatusFailedTranscription,
	},
	StatusProcessing: {
		StatusComplete, StatusFailed,
	},
	StatusTranscribing: {
		StatusSummarizing, StatusFailedTranscription,
	},
	StatusSummarizing: {
		StatusCompleteSummary, StatusFailedSummarization,
	},
	StatusComplete:            {},
	StatusCompleteSummary:     {},
	StatusFailed:              {},
	StatusFailedTranscription: {},
	StatusFailedSummarization: {},
}

// IsTerminal reports whether no further transition can leave this status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusCompleteSummary,
		StatusFailed, StatusFailedTranscription, StatusFailedSummarization:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status is one of the terminal failure states.
func (s JobStatus) IsFailure() bool {
	switch s {
	case StatusFailed, StatusFailedTranscription, StatusFailedSummarization:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is a valid forward move.
// Self-transitions are allowed so idempotent upserts don't error.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when from -> to is not a
// permitted forward move.
func ValidateTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func (s JobStatus) String() string {
	return string(s)
}
