package scraper

import (
	"context"
	"sync"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// FakeAgent is an in-memory Agent for tests. Mentions are returned as
// scripted; media and reply behavior are controlled per mention ID.
type FakeAgent struct {
	mu sync.Mutex

	Mentions    []proto.MentionEvent
	ScrapeErr   error
	Media       map[string]proto.MediaRef // mention ID -> media
	MediaErr    map[string]error          // mention ID -> acquisition error
	ReplyErr    map[string]error          // mention ID -> post error
	PostedTexts map[string][]string       // mention ID -> replies posted
}

// NewFakeAgent creates an empty fake.
func NewFakeAgent() *FakeAgent {
	return &FakeAgent{
		Media:       make(map[string]proto.MediaRef),
		MediaErr:    make(map[string]error),
		ReplyErr:    make(map[string]error),
		PostedTexts: make(map[string][]string),
	}
}

// ScrapeMentions implements Agent.
func (f *FakeAgent) ScrapeMentions(_ context.Context) ([]proto.MentionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScrapeErr != nil {
		return nil, f.ScrapeErr
	}
	return append([]proto.MentionEvent(nil), f.Mentions...), nil
}

// AcquireMedia implements Agent.
func (f *FakeAgent) AcquireMedia(_ context.Context, mention proto.MentionEvent) (proto.MediaRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.MediaErr[mention.ID]; ok {
		return proto.MediaRef{}, err
	}
	if media, ok := f.Media[mention.ID]; ok {
		return media, nil
	}
	return proto.MediaRef{}, ErrNoPlayableMedia
}

// PostReply implements Agent.
func (f *FakeAgent) PostReply(_ context.Context, mention proto.MentionEvent, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.ReplyErr[mention.ID]; ok {
		return err
	}
	f.PostedTexts[mention.ID] = append(f.PostedTexts[mention.ID], text)
	return nil
}

// Replies returns the texts posted for a mention.
func (f *FakeAgent) Replies(mentionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.PostedTexts[mentionID]...)
}
