// Package scraper defines the interface to the interactive content
// acquisition agent: the single stateful browser session that scrapes
// mentions, extracts playable media, and posts replies.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// ErrNoPlayableMedia is returned when a mention's source page carries no
// processable audio.
var ErrNoPlayableMedia = fmt.Errorf("no playable media found")

// Agent is the pipeline's view of the interactive session. Implementations
// are NOT safe for concurrent use; the session guard serializes callers.
type Agent interface {
	// ScrapeMentions returns the mentions currently visible to the bot.
	ScrapeMentions(ctx context.Context) ([]proto.MentionEvent, error)

	// AcquireMedia opens the mention's source page and extracts a playable
	// media reference. Returns ErrNoPlayableMedia when nothing processable
	// is found.
	AcquireMedia(ctx context.Context, mention proto.MentionEvent) (proto.MediaRef, error)

	// PostReply posts text in reply to the mention.
	PostReply(ctx context.Context, mention proto.MentionEvent, text string) error
}

// HTTPAgent talks to the agent service over its local HTTP control API. The
// service owns the actual browser session; this client simply forwards
// commands and surfaces its results.
type HTTPAgent struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logx.Logger
}

// NewHTTPAgent creates a client for the agent service at baseURL.
func NewHTTPAgent(baseURL, apiKey string) *HTTPAgent {
	return &HTTPAgent{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 2 * time.Minute},
		logger:  logx.NewLogger("scraper"),
	}
}

func (a *HTTPAgent) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoPlayableMedia
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned %d for %s %s: %s", resp.StatusCode, method, path, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode agent response: %w", err)
		}
	}
	return nil
}

// ScrapeMentions implements Agent.
func (a *HTTPAgent) ScrapeMentions(ctx context.Context) ([]proto.MentionEvent, error) {
	var mentions []proto.MentionEvent
	if err := a.do(ctx, http.MethodGet, "/mentions", nil, &mentions); err != nil {
		return nil, err
	}
	a.logger.Debug("Scraped %d mentions", len(mentions))
	return mentions, nil
}

// AcquireMedia implements Agent.
func (a *HTTPAgent) AcquireMedia(ctx context.Context, mention proto.MentionEvent) (proto.MediaRef, error) {
	var media proto.MediaRef
	payload := map[string]string{"mention_id": mention.ID, "source_url": mention.SourceURL}
	if err := a.do(ctx, http.MethodPost, "/media/acquire", payload, &media); err != nil {
		return proto.MediaRef{}, err
	}
	if media.URL == "" {
		return proto.MediaRef{}, ErrNoPlayableMedia
	}
	return media, nil
}

// PostReply implements Agent.
func (a *HTTPAgent) PostReply(ctx context.Context, mention proto.MentionEvent, text string) error {
	payload := map[string]string{"mention_id": mention.ID, "text": text}
	return a.do(ctx, http.MethodPost, "/replies", payload, nil)
}
