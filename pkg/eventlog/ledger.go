// Package eventlog maintains the on-disk error ledger: a JSON document of
// terminal mention failures keyed by mention ID. The ledger is diagnostic
// only and is never read back on the processing path.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

// Ledger appends error entries for terminally failed mentions. Writing an
// entry always co-occurs with marking the mention processed, so the ledger
// never drives retries.
type Ledger struct {
	path   string
	mu     sync.Mutex
	logger *logx.Logger
}

// NewLedger creates a ledger backed by the JSON file at path.
func NewLedger(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &Ledger{
		path:   path,
		logger: logx.NewLogger("errorledger"),
	}, nil
}

// Record writes (or bumps) the entry for the given mention. A repeated
// failure for the same mention increments OccurrenceCount and refreshes the
// message and timestamp.
func (l *Ledger) Record(mentionID string, phase proto.ErrorPhase, message string) error {
	if mentionID == "" {
		return fmt.Errorf("mention ID cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.readLocked()

	entry, exists := entries[mentionID]
	if exists {
		entry.OccurrenceCount++
	} else {
		entry = &proto.ErrorLedgerEntry{
			EntryID:         uuid.NewString(),
			OccurrenceCount: 1,
		}
		entries[mentionID] = entry
	}
	entry.Phase = phase
	entry.Message = message
	entry.Timestamp = time.Now().UTC()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write error ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace error ledger: %w", err)
	}

	l.logger.Info("Recorded %s failure for mention %s: %s", phase, mentionID, message)
	return nil
}

// readLocked loads the current ledger contents, tolerating a missing or
// corrupt file. Caller must hold l.mu.
func (l *Ledger) readLocked() map[string]*proto.ErrorLedgerEntry {
	entries := make(map[string]*proto.ErrorLedgerEntry)

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return entries
	}
	if err != nil {
		l.logger.Warn("Failed to read error ledger, starting fresh: %v", err)
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Warn("Error ledger is corrupt, starting fresh: %v", err)
		return make(map[string]*proto.ErrorLedgerEntry)
	}
	return entries
}

// Entries returns the ledger contents for diagnostics.
func (l *Ledger) Entries() map[string]*proto.ErrorLedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}
