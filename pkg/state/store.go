// Package state implements the durable JSON-file store that acts as the
// system of record for processed mentions and backend job tracking.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// document is the on-disk shape of the store file.
type document struct {
	Mentions []string                    `json:"mentions"`
	Projects map[string]*proto.JobRecord `json:"projects"`
}

// Store serializes all reads and writes of the state file. Every mutation is
// a read-modify-write of the whole document followed by an atomic rename, so
// the file on disk is always a complete valid JSON document.
type Store struct {
	path      string
	mu        sync.Mutex
	logger    *logx.Logger
	processed map[string]bool
	jobs      map[string]*proto.JobRecord
	now       func() time.Time
}

// JobPatch is a partial update applied by UpsertJob. Nil fields are left
// untouched. MentionID, when set, is appended to AssociatedMentionIDs.
type JobPatch struct {
	BackendJobID *string
	Status       *proto.JobStatus
	Workflow     *proto.WorkflowKind
	MentionID    string
}

// NewStore opens (or initializes) the state file at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &Store{
		path:      path,
		logger:    logx.NewLogger("state"),
		processed: make(map[string]bool),
		jobs:      make(map[string]*proto.JobRecord),
		now:       time.Now,
	}
	s.loadLocked()
	return s, nil
}

// loadLocked reads the state file into memory. A missing file initializes an
// empty store; a legacy array-only file is migrated; malformed JSON is
// reinitialized rather than crashing the process.
func (s *Store) loadLocked() {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("No state file at %s, starting empty", s.path)
		return
	}
	if err != nil {
		s.logger.Error("Failed to read state file %s, starting empty: %v", s.path, err)
		return
	}

	var doc document
	if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
		// Legacy format: a bare JSON array of processed mention IDs.
		var legacy []string
		if legacyErr := json.Unmarshal(data, &legacy); legacyErr == nil {
			s.logger.Info("Migrating legacy array-only state file (%d mentions)", len(legacy))
			for _, id := range legacy {
				s.processed[id] = true
			}
			return
		}
		s.logger.Error("State file %s is corrupt, reinitializing: %v", s.path, jsonErr)
		return
	}

	for _, id := range doc.Mentions {
		s.processed[id] = true
	}
	if doc.Projects != nil {
		s.jobs = doc.Projects
	}
	s.logger.Info("Loaded state: %d processed mentions, %d jobs", len(s.processed), len(s.jobs))
}

// saveLocked writes the whole document to a temp file and renames it over the
// state file. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	doc := document{
		Mentions: make([]string, 0, len(s.processed)),
		Projects: s.jobs,
	}
	for id := range s.processed {
		doc.Mentions = append(doc.Mentions, id)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// IsProcessed reports whether the mention has reached a terminal outcome.
func (s *Store) IsProcessed(mentionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[mentionID]
}

// MarkProcessed adds the mention to the processed set. Idempotent. On a
// failed disk write the in-memory mirror is rolled back so a later attempt
// can retry the write.
func (s *Store) MarkProcessed(mentionID string) error {
	if mentionID == "" {
		return fmt.Errorf("mention ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processed[mentionID] {
		return nil
	}

	s.processed[mentionID] = true
	if err := s.saveLocked(); err != nil {
		delete(s.processed, mentionID)
		return logx.Wrap(err, fmt.Sprintf("mark processed %s", mentionID))
	}
	s.logger.Debug("Marked mention %s processed", mentionID)
	return nil
}

// ProcessedCount returns the size of the processed set.
func (s *Store) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// UpsertJob creates or merges the job record for the given idempotency key.
// Status changes are validated against the forward-only transition table; a
// regression is logged and dropped rather than applied. UpdatedAt is bumped
// on every call and MentionID is appended if not already present.
func (s *Store) UpsertJob(key string, patch JobPatch) (*proto.JobRecord, error) {
	if key == "" {
		return nil, fmt.Errorf("idempotency key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.jobs[key]
	if !exists {
		rec = &proto.JobRecord{
			IdempotencyKey: key,
			Status:         proto.StatusInitiated,
			CreatedAt:      s.now().UTC(),
		}
		s.jobs[key] = rec
	}

	if patch.BackendJobID != nil {
		rec.BackendJobID = *patch.BackendJobID
	}
	if patch.Workflow != nil {
		rec.Workflow = *patch.Workflow
	}
	if patch.Status != nil && *patch.Status != rec.Status {
		if err := proto.ValidateTransition(rec.Status, *patch.Status); err != nil {
			s.logger.Warn("Dropping status regression for %s: %v", key, err)
		} else {
			rec.Status = *patch.Status
		}
	}
	if patch.MentionID != "" && !rec.HasMention(patch.MentionID) {
		rec.AssociatedMentionIDs = append(rec.AssociatedMentionIDs, patch.MentionID)
	}
	rec.UpdatedAt = s.now().UTC()

	if err := s.saveLocked(); err != nil {
		return nil, logx.Wrap(err, fmt.Sprintf("upsert job %s", key))
	}
	return rec.Clone(), nil
}

// ResetJob replaces a terminally failed record with a fresh incarnation so a
// later mention can retry the same idempotency key. Associated mentions are
// carried over. Resetting a non-failed record is refused: in-flight and
// completed jobs must never be restarted.
func (s *Store) ResetJob(key string, workflow proto.WorkflowKind, mentionID string) (*proto.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.jobs[key]
	if !exists {
		return nil, fmt.Errorf("cannot reset unknown job %s", key)
	}
	if !prev.Status.IsFailure() {
		return nil, fmt.Errorf("cannot reset job %s in status %s", key, prev.Status)
	}

	rec := &proto.JobRecord{
		IdempotencyKey:       key,
		Status:               proto.StatusInitiated,
		Workflow:             workflow,
		CreatedAt:            s.now().UTC(),
		UpdatedAt:            s.now().UTC(),
		AssociatedMentionIDs: append([]string(nil), prev.AssociatedMentionIDs...),
	}
	if mentionID != "" && !rec.HasMention(mentionID) {
		rec.AssociatedMentionIDs = append(rec.AssociatedMentionIDs, mentionID)
	}
	s.jobs[key] = rec

	if err := s.saveLocked(); err != nil {
		s.jobs[key] = prev
		return nil, logx.Wrap(err, fmt.Sprintf("reset job %s", key))
	}
	s.logger.Info("Reset failed job %s for retry (was %s)", key, prev.Status)
	return rec.Clone(), nil
}

// GetJob returns a copy of the record for the given idempotency key.
func (s *Store) GetJob(key string) (*proto.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// FindJobByMention linearly scans jobs for one tracking the given mention.
// Job count stays small relative to mention volume, so the scan is fine.
func (s *Store) FindJobByMention(mentionID string) *proto.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.jobs {
		if rec.HasMention(mentionID) {
			return rec.Clone()
		}
	}
	return nil
}

// Jobs returns a copy of all job records. Startup uses it to find
// non-terminal jobs a previous run left behind.
func (s *Store) Jobs() map[string]*proto.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*proto.JobRecord, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v.Clone()
	}
	return out
}
