package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/speechlab"
)

var (
	// ErrPollTimeout means the job never reached COMPLETE within the bound.
	// The job may still finish later; from this process's perspective it is
	// a failure.
	ErrPollTimeout = fmt.Errorf("completion poll timed out")

	// ErrJobFailed means the backend reported the job FAILED.
	ErrJobFailed = fmt.Errorf("backend job failed")
)

// progressEstimate is a crude linear heuristic used only for log output.
func progressEstimate(status string) float64 {
	switch status {
	case speechlab.JobStatusProcessing:
		return 0.5
	case speechlab.JobStatusComplete:
		return 1.0
	default:
		return 0.1
	}
}

// waitForCompletion polls the backend job until it reaches COMPLETE, reports
// FAILED, or maxWait elapses. Jobs with a known backend ID are fetched by ID;
// otherwise by third-party key. A "not found" snapshot is treated as "keep
// waiting": backend reads can lag job creation.
func (o *Orchestrator) waitForCompletion(ctx context.Context, key, jobID string, maxWait, interval time.Duration) (*speechlab.JobSnapshot, error) {
	start := time.Now()
	deadline := start.Add(maxWait)

	fetch := func() (*speechlab.JobSnapshot, error) {
		if jobID != "" {
			return o.backend.GetJobByID(ctx, jobID)
		}
		return o.backend.GetJobByThirdPartyID(ctx, key)
	}

	for {
		snapshot, err := fetch()
		switch {
		case errors.Is(err, speechlab.ErrJobNotFound):
			o.logger.Debug("Job %s not visible yet, still waiting", key)
		case err != nil:
			o.logger.Warn("Poll for %s errored (will retry): %v", key, err)
		case snapshot.Status == speechlab.JobStatusComplete:
			return snapshot, nil
		case snapshot.Status == speechlab.JobStatusFailed:
			o.logger.Warn("Job %s reported FAILED after %s", key, time.Since(start).Round(time.Second))
			return nil, ErrJobFailed
		default:
			elapsed := time.Since(start)
			progress := progressEstimate(snapshot.Status)
			remaining := "unknown"
			if progress > 0 {
				remaining = time.Duration(float64(elapsed)/progress - float64(elapsed)).Round(time.Second).String()
			}
			o.logger.Info("Job %s is %s (elapsed %s, est. remaining %s)",
				key, snapshot.Status, elapsed.Round(time.Second), remaining)
		}

		if time.Now().Add(interval).After(deadline) {
			return nil, fmt.Errorf("%w after %s (key %s)", ErrPollTimeout, time.Since(start).Round(time.Second), key)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poll cancelled: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}
