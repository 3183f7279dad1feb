// Package speechlab is the client for the external dubbing/transcription
// backend. Jobs are idempotent: every submission carries a third-party ID
// (the pipeline's idempotency key) that the backend deduplicates on.
package speechlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
)

// Backend job statuses as reported on the wire.
const (
	JobStatusProcessing = "PROCESSING"
	JobStatusComplete   = "COMPLETE"
	JobStatusFailed     = "FAILED"
)

// ErrJobNotFound is returned when no job exists for the given ID or key.
// Callers polling a freshly created job treat this as "not visible yet".
var ErrJobNotFound = fmt.Errorf("job not found")

// Artifact is one file attached to a job's result payload.
type Artifact struct {
	Category  string `json:"category"`  // "audio", "video", "text"
	Format    string `json:"format"`    // "mp3", "wav", ...
	Direction string `json:"direction"` // "input" or "output"
	URL       string `json:"url"`
}

// JobSnapshot is the backend's view of one job at a point in time.
type JobSnapshot struct {
	ID            string     `json:"id"`
	ThirdPartyID  string     `json:"thirdPartyID"`
	Status        string     `json:"status"`
	Transcription string     `json:"transcription,omitempty"`
	Artifacts     []Artifact `json:"artifacts,omitempty"`
}

// OutputAudio returns the dubbed output audio artifact, or nil when the job
// result carries none.
func (s *JobSnapshot) OutputAudio() *Artifact {
	for i := range s.Artifacts {
		a := &s.Artifacts[i]
		if a.Category == "audio" && a.Format == "mp3" && a.Direction == "output" {
			return a
		}
	}
	return nil
}

// DubbingParams describes a dubbing job submission.
type DubbingParams struct {
	Name         string `json:"name"`
	MediaURL     string `json:"mediaUrl"`
	SourceLang   string `json:"sourceLanguage"`
	TargetLang   string `json:"targetLanguage"`
	ThirdPartyID string `json:"thirdPartyID"`
}

// TranscriptionParams describes a transcription-only job submission.
type TranscriptionParams struct {
	Name         string `json:"name"`
	MediaURL     string `json:"mediaUrl"`
	SourceLang   string `json:"sourceLanguage"`
	ThirdPartyID string `json:"thirdPartyID"`
}

// Client is the pipeline's view of the backend. Safe for concurrent use.
type Client interface {
	CreateDubbing(ctx context.Context, params DubbingParams) (string, error)
	CreateTranscription(ctx context.Context, params TranscriptionParams) (string, error)
	GetJobByThirdPartyID(ctx context.Context, key string) (*JobSnapshot, error)
	GetJobByID(ctx context.Context, jobID string) (*JobSnapshot, error)
	GenerateSharingLink(ctx context.Context, jobID string) (string, error)
}

// HTTPClient implements Client against the backend's JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logx.Logger
}

// NewHTTPClient creates a backend client with bearer auth.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logx.NewLogger("speechlab"),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrJobNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d for %s %s: %s", resp.StatusCode, method, path, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode backend response: %w", err)
		}
	}
	return nil
}

// CreateDubbing implements Client.
func (c *HTTPClient) CreateDubbing(ctx context.Context, params DubbingParams) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/projects/dub", params, &created); err != nil {
		return "", err
	}
	c.logger.Info("Created dubbing job %s (key %s)", created.ID, params.ThirdPartyID)
	return created.ID, nil
}

// CreateTranscription implements Client.
func (c *HTTPClient) CreateTranscription(ctx context.Context, params TranscriptionParams) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/projects/transcribe", params, &created); err != nil {
		return "", err
	}
	c.logger.Info("Created transcription job %s (key %s)", created.ID, params.ThirdPartyID)
	return created.ID, nil
}

// GetJobByThirdPartyID implements Client.
func (c *HTTPClient) GetJobByThirdPartyID(ctx context.Context, key string) (*JobSnapshot, error) {
	var snapshot JobSnapshot
	path := "/v1/projects?thirdPartyID=" + key
	if err := c.do(ctx, http.MethodGet, path, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetJobByID implements Client.
func (c *HTTPClient) GetJobByID(ctx context.Context, jobID string) (*JobSnapshot, error) {
	var snapshot JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/v1/projects/"+jobID, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GenerateSharingLink implements Client.
func (c *HTTPClient) GenerateSharingLink(ctx context.Context, jobID string) (string, error) {
	var out struct {
		Link string `json:"link"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/projects/"+jobID+"/share", nil, &out); err != nil {
		return "", err
	}
	return out.Link, nil
}
