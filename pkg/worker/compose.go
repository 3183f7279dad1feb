package worker

import (
	"fmt"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// replyBudget is the platform's per-post character limit. Summaries can
// exceed it easily; everything else should fit. Over-budget text is cut
// with an ellipsis rather than split into a thread.
const replyBudget = 280

const ellipsis = "…"

// ComposeReply renders the final reply text for an outcome.
func ComposeReply(outcome proto.Outcome) string {
	return truncate(compose(outcome), replyBudget)
}

func compose(outcome proto.Outcome) string {
	if outcome.Workflow == proto.WorkflowSummarization {
		if !outcome.Success {
			return fmt.Sprintf("Sorry, I couldn't summarize this Space: %s", failureReason(outcome))
		}
		return "Here's a summary of this Space:\n\n" + outcome.SummaryText
	}

	if !outcome.Success {
		return fmt.Sprintf("Sorry, the dubbing for this Space didn't complete: %s", failureReason(outcome))
	}

	if outcome.ArtifactURL != "" {
		text := "Your dubbed Space is ready! Listen here: " + outcome.ArtifactURL
		if outcome.ShareLink != "" {
			text += "\nProject: " + outcome.ShareLink
		}
		return text
	}

	// Degraded success: the backend job finished but the audio never
	// made it to public storage. Point at whatever is still reachable.
	if outcome.ShareLink != "" {
		return "The dubbing finished, but I couldn't attach the audio file here. You can find it at: " + outcome.ShareLink
	}
	if outcome.BackendJobID != "" {
		return fmt.Sprintf("The dubbing finished, but I couldn't retrieve the audio file (job %s). Sorry about that!", outcome.BackendJobID)
	}
	return "The dubbing finished, but I couldn't retrieve the audio file. Sorry about that!"
}

func failureReason(outcome proto.Outcome) string {
	if outcome.ErrorMessage != "" {
		return outcome.ErrorMessage
	}
	return "an internal error occurred"
}

func truncate(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget-1]) + ellipsis
}
