package speechlab

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is an in-memory Client for tests. Jobs are stored by both ID
// and third-party key; tests can script status sequences per key so that
// successive polls observe progress.
type FakeClient struct {
	mu sync.Mutex

	jobs       map[string]*JobSnapshot // job ID -> snapshot
	byKey      map[string]string       // third-party key -> job ID
	sequences  map[string][]string     // key -> remaining statuses to serve
	pending    map[string]*JobSnapshot // key -> result staged before creation
	nextID     int
	ShareLinks map[string]string // job ID -> link
	ShareErr   error

	SubmitErr   error
	Submissions []string // third-party keys of every create call, in order
}

// NewFakeClient creates an empty fake backend.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		jobs:       make(map[string]*JobSnapshot),
		byKey:      make(map[string]string),
		sequences:  make(map[string][]string),
		pending:    make(map[string]*JobSnapshot),
		ShareLinks: make(map[string]string),
	}
}

// Seed installs an existing job snapshot, as if a prior process created it.
func (f *FakeClient) Seed(snapshot *JobSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[snapshot.ID] = snapshot
	if snapshot.ThirdPartyID != "" {
		f.byKey[snapshot.ThirdPartyID] = snapshot.ID
	}
}

// ScriptStatuses makes successive polls for key walk the given statuses,
// sticking on the last one.
func (f *FakeClient) ScriptStatuses(key string, statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequences[key] = statuses
}

func (f *FakeClient) create(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Submissions = append(f.Submissions, key)
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}

	f.nextID++
	id := fmt.Sprintf("job-%04d", f.nextID)
	job := &JobSnapshot{ID: id, ThirdPartyID: key, Status: JobStatusProcessing}
	if staged, ok := f.pending[key]; ok {
		job.Transcription = staged.Transcription
		job.Artifacts = staged.Artifacts
		delete(f.pending, key)
	}
	f.jobs[id] = job
	f.byKey[key] = id
	return id, nil
}

// CreateDubbing implements Client.
func (f *FakeClient) CreateDubbing(_ context.Context, params DubbingParams) (string, error) {
	return f.create(params.ThirdPartyID)
}

// CreateTranscription implements Client.
func (f *FakeClient) CreateTranscription(_ context.Context, params TranscriptionParams) (string, error) {
	return f.create(params.ThirdPartyID)
}

// GetJobByThirdPartyID implements Client.
func (f *FakeClient) GetJobByThirdPartyID(_ context.Context, key string) (*JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byKey[key]
	if !ok {
		return nil, ErrJobNotFound
	}
	return f.snapshotLocked(id, key), nil
}

// GetJobByID implements Client.
func (f *FakeClient) GetJobByID(_ context.Context, jobID string) (*JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return f.snapshotLocked(jobID, job.ThirdPartyID), nil
}

// snapshotLocked returns a copy of the job, advancing any scripted status
// sequence for its key. Caller must hold f.mu.
func (f *FakeClient) snapshotLocked(jobID, key string) *JobSnapshot {
	job := f.jobs[jobID]
	cp := *job
	cp.Artifacts = append([]Artifact(nil), job.Artifacts...)

	if seq, ok := f.sequences[key]; ok && len(seq) > 0 {
		cp.Status = seq[0]
		if len(seq) > 1 {
			f.sequences[key] = seq[1:]
		}
		job.Status = cp.Status
	}
	return &cp
}

// SetResult attaches a final result payload to the job for the given key.
// A result set before the job exists is staged and applied at creation.
func (f *FakeClient) SetResult(key string, transcription string, artifacts ...Artifact) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.byKey[key]; ok {
		f.jobs[id].Transcription = transcription
		f.jobs[id].Artifacts = artifacts
		return
	}
	f.pending[key] = &JobSnapshot{Transcription: transcription, Artifacts: artifacts}
}

// LastSubmission returns the third-party key of the most recent create call,
// or "" when nothing has been submitted.
func (f *FakeClient) LastSubmission() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Submissions) == 0 {
		return ""
	}
	return f.Submissions[len(f.Submissions)-1]
}

// GenerateSharingLink implements Client.
func (f *FakeClient) GenerateSharingLink(_ context.Context, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ShareErr != nil {
		return "", f.ShareErr
	}
	if link, ok := f.ShareLinks[jobID]; ok {
		return link, nil
	}
	return "https://share.example.com/" + jobID, nil
}
