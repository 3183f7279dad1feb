package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminality(t *testing.T) {
	terminal := []JobStatus{
		StatusComplete, StatusCompleteSummary,
		StatusFailed, StatusFailedTranscription, StatusFailedSummarization,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
		assert.Empty(t, ValidTransitions[s], "terminal state %s must have no outgoing edges", s)
	}

	nonTerminal := []JobStatus{
		StatusInitiated, StatusProcessing, StatusTranscribing, StatusSummarizing,
	}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		ok   bool
	}{
		{"initiated to processing", StatusInitiated, StatusProcessing, true},
		{"initiated to transcribing", StatusInitiated, StatusTranscribing, true},
		{"processing to complete", StatusProcessing, StatusComplete, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"transcribing to summarizing", StatusTranscribing, StatusSummarizing, true},
		{"transcribing to failed transcription", StatusTranscribing, StatusFailedTranscription, true},
		{"summarizing to complete summary", StatusSummarizing, StatusCompleteSummary, true},
		{"summarizing to failed summarization", StatusSummarizing, StatusFailedSummarization, true},
		{"self transition allowed", StatusProcessing, StatusProcessing, true},
		{"no regression to initiated", StatusProcessing, StatusInitiated, false},
		{"complete is terminal", StatusComplete, StatusProcessing, false},
		{"failed is terminal", StatusFailed, StatusProcessing, false},
		{"no skip from initiated to complete", StatusInitiated, StatusComplete, false},
		{"dubbing and summary branches do not cross", StatusProcessing, StatusCompleteSummary, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestJobRecordClone(t *testing.T) {
	rec := &JobRecord{
		IdempotencyKey:       "space-abc-en-to-es",
		Status:               StatusProcessing,
		Workflow:             WorkflowDubbing,
		AssociatedMentionIDs: []string{"m1"},
	}

	cp := rec.Clone()
	cp.AssociatedMentionIDs = append(cp.AssociatedMentionIDs, "m2")
	cp.Status = StatusComplete

	assert.Equal(t, []string{"m1"}, rec.AssociatedMentionIDs)
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.True(t, cp.HasMention("m2"))
	assert.False(t, rec.HasMention("m2"))
}
