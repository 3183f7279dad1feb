// Package storage moves dubbed artifacts between the backend's CDN, local
// temp files, and public object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
)

// Store uploads local files to public object storage and downloads remote
// artifacts to local paths.
type Store interface {
	// Download fetches url into localPath, creating parent directories.
	Download(ctx context.Context, url, localPath string) error
	// Upload puts localPath at remoteKey and returns the public URL.
	Upload(ctx context.Context, localPath, remoteKey string) (string, error)
}

// HTTPStore implements Store against a presigned-style HTTP object store:
// objects are PUT to baseURL/bucket/key and served from publicURL/key.
type HTTPStore struct {
	baseURL   string
	bucket    string
	publicURL string
	client    *http.Client
	logger    *logx.Logger
}

// NewHTTPStore creates a store client.
func NewHTTPStore(baseURL, bucket, publicURL string) *HTTPStore {
	return &HTTPStore{
		baseURL:   baseURL,
		bucket:    bucket,
		publicURL: publicURL,
		client:    &http.Client{Timeout: 10 * time.Minute},
		logger:    logx.NewLogger("storage"),
	}
}

// Download implements Store.
func (s *HTTPStore) Download(ctx context.Context, url, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s returned %d", url, resp.StatusCode)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	s.logger.Debug("Downloaded %d bytes to %s", n, localPath)
	return nil
}

// Upload implements Store.
func (s *HTTPStore) Upload(ctx context.Context, localPath, remoteKey string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, remoteKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload of %s failed: %w", remoteKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload of %s returned %d", remoteKey, resp.StatusCode)
	}

	publicURL := fmt.Sprintf("%s/%s", s.publicURL, remoteKey)
	s.logger.Info("Uploaded %s (%d bytes) -> %s", remoteKey, info.Size(), publicURL)
	return publicURL, nil
}

// FakeStore is an in-memory Store for tests.
type FakeStore struct {
	Downloads   map[string]string // url -> content written locally
	Uploaded    map[string]string // remoteKey -> localPath
	DownloadErr error
	UploadErr   error
	PublicBase  string
}

// NewFakeStore creates an empty fake.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Downloads:  make(map[string]string),
		Uploaded:   make(map[string]string),
		PublicBase: "https://public.example.com",
	}
}

// Download implements Store.
func (f *FakeStore) Download(_ context.Context, url, localPath string) error {
	if f.DownloadErr != nil {
		return f.DownloadErr
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	content := f.Downloads[url]
	if content == "" {
		content = "fake-audio"
	}
	return os.WriteFile(localPath, []byte(content), 0644)
}

// Upload implements Store.
func (f *FakeStore) Upload(_ context.Context, localPath, remoteKey string) (string, error) {
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	f.Uploaded[remoteKey] = localPath
	return f.PublicBase + "/" + remoteKey, nil
}
