// Package persistence archives terminal job records to SQLite. The
// JSON state file remains the system of record; the archive exists for
// offline inspection and reporting, so writes are fire-and-forget
// through a single worker goroutine (SQLite allows one writer).
package persistence

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	idempotency_key TEXT PRIMARY KEY,
	backend_job_id  TEXT,
	workflow        TEXT NOT NULL,
	status          TEXT NOT NULL,
	mention_ids     TEXT,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	archived_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_history_status ON job_history(status);
`

// archiveQueueDepth bounds the fire-and-forget channel. Overflow drops
// the record with a warning rather than blocking the reply worker.
const archiveQueueDepth = 64

// ArchivedJob is one row of job history.
type ArchivedJob struct {
	IdempotencyKey string
	BackendJobID   string
	Workflow       string
	Status         string
	MentionIDs     []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ArchivedAt     time.Time
}

// Archiver owns the SQLite connection and the write worker.
type Archiver struct {
	db     *sql.DB
	logger *logx.Logger

	requests  chan *proto.JobRecord
	closeOnce sync.Once
	done      chan struct{}
}

// Open initializes the archive database at dbPath and starts the write
// worker.
func Open(dbPath string) (*Archiver, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	a := &Archiver{
		db:       db,
		logger:   logx.NewLogger("persistence"),
		requests: make(chan *proto.JobRecord, archiveQueueDepth),
		done:     make(chan struct{}),
	}
	go a.worker()
	return a, nil
}

// Archive enqueues a terminal job record. Non-blocking; a full queue
// drops the record.
func (a *Archiver) Archive(record *proto.JobRecord) {
	if record == nil {
		return
	}
	select {
	case a.requests <- record.Clone():
	default:
		a.logger.Warn("archive queue full, dropping record for %s", record.IdempotencyKey)
	}
}

// Close drains pending writes and closes the database.
func (a *Archiver) Close() error {
	a.closeOnce.Do(func() { close(a.requests) })
	<-a.done
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive database: %w", err)
	}
	return nil
}

func (a *Archiver) worker() {
	defer close(a.done)
	for record := range a.requests {
		if err := a.upsert(record); err != nil {
			a.logger.Error("archive write failed for %s: %v", record.IdempotencyKey, err)
		}
	}
}

func (a *Archiver) upsert(record *proto.JobRecord) error {
	query := `
		INSERT INTO job_history (
			idempotency_key, backend_job_id, workflow, status,
			mention_ids, created_at, updated_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO UPDATE SET
			backend_job_id = excluded.backend_job_id,
			status = excluded.status,
			mention_ids = excluded.mention_ids,
			updated_at = excluded.updated_at,
			archived_at = excluded.archived_at
	`
	_, err := a.db.Exec(query,
		record.IdempotencyKey,
		record.BackendJobID,
		string(record.Workflow),
		string(record.Status),
		strings.Join(record.AssociatedMentionIDs, ","),
		record.CreatedAt,
		record.UpdatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", record.IdempotencyKey, err)
	}
	return nil
}

// History returns all archived rows, newest first. Diagnostic use.
func (a *Archiver) History() ([]ArchivedJob, error) {
	rows, err := a.db.Query(`
		SELECT idempotency_key, backend_job_id, workflow, status,
		       mention_ids, created_at, updated_at, archived_at
		FROM job_history
		ORDER BY archived_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []ArchivedJob
	for rows.Next() {
		var job ArchivedJob
		var mentionIDs string
		if err := rows.Scan(
			&job.IdempotencyKey, &job.BackendJobID, &job.Workflow, &job.Status,
			&mentionIDs, &job.CreatedAt, &job.UpdatedAt, &job.ArchivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job history row: %w", err)
		}
		if mentionIDs != "" {
			job.MentionIDs = strings.Split(mentionIDs, ",")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job history: %w", err)
	}
	return jobs, nil
}
