package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// APIReplyAgent decorates an Agent so that final replies go through the
// platform's REST API instead of the interactive session. Scraping and media
// acquisition still go through the wrapped agent.
type APIReplyAgent struct {
	Agent
	endpoint string
	bearer   string
	client   *http.Client
}

// NewAPIReplyAgent wraps inner, posting replies to the given API endpoint.
func NewAPIReplyAgent(inner Agent, endpoint, bearer string) *APIReplyAgent {
	return &APIReplyAgent{
		Agent:    inner,
		endpoint: endpoint,
		bearer:   bearer,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// PostReply implements Agent via the REST API.
func (a *APIReplyAgent) PostReply(ctx context.Context, mention proto.MentionEvent, text string) error {
	payload := map[string]any{
		"text":  text,
		"reply": map[string]string{"in_reply_to_tweet_id": mention.ID},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.bearer)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("reply API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("reply API returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
