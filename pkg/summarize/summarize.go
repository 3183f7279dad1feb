// Package summarize produces short summaries of Space transcriptions through
// a configurable LLM provider.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/config"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
)

const systemPrompt = "You summarize Twitter Space transcriptions. Reply with a concise, " +
	"neutral summary of the conversation in at most three sentences. Plain text only."

// Transcriptions can be hours of speech; keep requests bounded.
const maxTranscriptChars = 48000

// Summarizer condenses a transcription into reply-sized text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// New builds the provider selected by the config.
func New(cfg config.SummarizerConfig) (Summarizer, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropic(cfg), nil
	case "openai":
		return newOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}

func clampTranscript(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxTranscriptChars {
		return text[:maxTranscriptChars]
	}
	return text
}

type anthropicSummarizer struct {
	client anthropic.Client
	model  anthropic.Model
	logger *logx.Logger
}

func newAnthropic(cfg config.SummarizerConfig) *anthropicSummarizer {
	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	return &anthropicSummarizer{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(cfg.APIKey)),
		model:  model,
		logger: logx.NewLogger("summarize"),
	}
}

// Summarize implements Summarizer.
func (s *anthropicSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = clampTranscript(text)
	if text == "" {
		return "", fmt.Errorf("transcription is empty")
	}

	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic summarization failed: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", fmt.Errorf("empty response from anthropic")
	}

	var out strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			out.WriteString(block.AsText().Text)
		}
	}
	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	s.logger.Debug("Summarized %d chars into %d chars", len(text), len(summary))
	return summary, nil
}

type openaiSummarizer struct {
	client openai.Client
	model  string
	logger *logx.Logger
}

func newOpenAI(cfg config.SummarizerConfig) *openaiSummarizer {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openaiSummarizer{
		client: openai.NewClient(openaioption.WithAPIKey(cfg.APIKey)),
		model:  model,
		logger: logx.NewLogger("summarize"),
	}
}

// Summarize implements Summarizer.
func (s *openaiSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = clampTranscript(text)
	if text == "" {
		return "", fmt.Errorf("transcription is empty")
	}

	input := fmt.Sprintf("System: %s\n\n%s", systemPrompt, text)
	resp, err := s.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           s.model,
		MaxOutputTokens: openai.Int(512),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	})
	if err != nil {
		return "", fmt.Errorf("openai summarization failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from openai")
	}

	summary := strings.TrimSpace(resp.OutputText())
	if summary == "" {
		return "", fmt.Errorf("openai returned no text content")
	}
	s.logger.Debug("Summarized %d chars into %d chars", len(text), len(summary))
	return summary, nil
}

// FakeSummarizer is a scripted Summarizer for tests.
type FakeSummarizer struct {
	Summary string
	Err     error
	Calls   int
}

// Summarize implements Summarizer.
func (f *FakeSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	return f.Summary, nil
}
