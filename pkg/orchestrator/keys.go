package orchestrator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// ContentID extracts a stable content identifier from a mention. The last
// path segment of the source URL identifies the Space; mentions without a
// usable URL fall back to their own ID.
func ContentID(mention proto.MentionEvent) string {
	raw := strings.TrimRight(mention.SourceURL, "/")
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}
	if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		raw = raw[:idx]
	}
	if raw == "" {
		return mention.ID
	}
	return raw
}

// DubbingKey derives the content-stable idempotency key for a dubbing job.
// Two mentions referencing the same Space and language pair map to the same
// key, so the second resolves to the first's job.
func DubbingKey(mention proto.MentionEvent, sourceLang, targetLang string) string {
	name := fmt.Sprintf("space %s", ContentID(mention))
	return fmt.Sprintf("%s-%s-to-%s", slug(name), sourceLang, targetLang)
}

// SummarizationKey derives a mention-unique idempotency key for a
// summarization job. Unlike dubbing keys these are deliberately not stable
// across mentions: each summarization request is its own job.
func SummarizationKey(mention proto.MentionEvent) string {
	short := mention.ID
	if len(short) > 8 {
		short = short[len(short)-8:]
	}
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("summary-%s-%s-%s", ContentID(mention), short, suffix)
}

// slug lowercases and reduces a name to alphanumerics joined by dashes.
func slug(s string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
