// Package jobs tracks extraction runs per resource. At most one job per
// (campaign, resource) pair is active at a time, concurrent retries collapse
// onto the existing job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/core/pipeline"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
)

// ErrRateLimited marks a run failure caused by upstream rate limiting. A
// runner wrapping this sentinel ends the job as rate_limited instead of
// failed. It is the generator's sentinel, errors from a rate limited model
// call classify without translation.
var ErrRateLimited = pipeline.ErrRateLimited

// Runner performs the actual extraction for one resource
type Runner func(ctx context.Context, campaignID uuid.UUID, resourceID string) error

// JobStore is the persistence consumed by the tracker
type JobStore interface {
	AcquireJob(ctx context.Context, campaignID uuid.UUID, resourceID string) (bool, error)
	SetJobStatus(ctx context.Context, campaignID uuid.UUID, resourceID string, status model.JobStatus, jobErr string) (bool, error)
	SelectJob(ctx context.Context, campaignID uuid.UUID, resourceID string) (*model.ExtractionJob, error)
	SelectActiveJobs(ctx context.Context, limit int) ([]*model.ExtractionJob, error)
}

type jobKey struct {
	campaignID uuid.UUID
	resourceID string
}

// Tracker manages extraction job state and completion notification
type Tracker struct {
	jobs JobStore
	run  Runner
	cfg  model.PollConfig
	log  *slog.Logger

	mu       sync.Mutex
	watchers map[jobKey][]chan model.JobStatus
}

// NewTracker creates a tracker. run may be nil, acquired jobs then stay
// pending until an external worker picks them up.
func NewTracker(jobs JobStore, run Runner, cfg model.PollConfig, logger *slog.Logger) (*Tracker, error) {
	if jobs == nil {
		return nil, helper.NewError("tracker validation", fmt.Errorf("job store is nil"))
	}
	if cfg.Interval <= 0 {
		cfg = model.DefaultPollConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		jobs:     jobs,
		run:      run,
		cfg:      cfg,
		log:      logger,
		watchers: map[jobKey][]chan model.JobStatus{},
	}, nil
}

// Retry enqueues an extraction run for the resource. If a pending or
// processing job already exists the call collapses onto it and returns its
// state, a terminal or unknown job is replaced by a fresh pending one.
func (t *Tracker) Retry(ctx context.Context, campaignID uuid.UUID, resourceID string) (*model.JobState, error) {
	acquired, err := t.jobs.AcquireJob(ctx, campaignID, resourceID)
	if err != nil {
		return nil, helper.NewError("acquire job", err)
	}

	if !acquired {
		return t.Status(ctx, campaignID, resourceID)
	}

	if t.run != nil {
		go t.execute(campaignID, resourceID)
	}

	t.log.Info("Enqueued extraction job",
		slog.String("campaign_id", campaignID.String()),
		slog.String("resource_id", resourceID),
	)

	return &model.JobState{InQueue: true, Status: model.JobStatusPending}, nil
}

// execute runs the extraction outside the caller's request lifetime
func (t *Tracker) execute(campaignID uuid.UUID, resourceID string) {
	ctx := context.Background()

	_, err := t.jobs.SetJobStatus(ctx, campaignID, resourceID, model.JobStatusProcessing, "")
	if err != nil {
		t.log.Error("Failed to mark job processing", slog.String("error", err.Error()))
	}

	runErr := t.run(ctx, campaignID, resourceID)

	status := model.JobStatusCompleted
	jobErr := ""
	switch {
	case errors.Is(runErr, ErrRateLimited):
		status = model.JobStatusRateLimited
		jobErr = runErr.Error()
	case runErr != nil:
		status = model.JobStatusFailed
		jobErr = runErr.Error()
	}

	_, err = t.Complete(ctx, campaignID, resourceID, status, jobErr)
	if err != nil {
		t.log.Error("Failed to record job result",
			slog.String("campaign_id", campaignID.String()),
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
	}
}

// Status reports the polling view of a job. A resource that was never
// enqueued yields status none and in_queue false.
func (t *Tracker) Status(ctx context.Context, campaignID uuid.UUID, resourceID string) (*model.JobState, error) {
	job, err := t.jobs.SelectJob(ctx, campaignID, resourceID)
	if err != nil {
		return nil, helper.NewError("select job", err)
	}
	if job == nil {
		return &model.JobState{InQueue: false, Status: model.JobStatusNone}, nil
	}

	return &model.JobState{InQueue: job.Status.Active(), Status: job.Status}, nil
}

// Complete records a terminal result for a job, typically delivered by an
// out-of-band completion event. It is idempotent, repeating the current
// terminal status returns true, moving a terminal job backwards returns
// false.
func (t *Tracker) Complete(ctx context.Context, campaignID uuid.UUID, resourceID string, status model.JobStatus, jobErr string) (bool, error) {
	if !status.Terminal() {
		return false, helper.NewError("complete job", fmt.Errorf("status %v is not terminal", status))
	}

	applied, err := t.jobs.SetJobStatus(ctx, campaignID, resourceID, status, jobErr)
	if err != nil {
		return false, helper.NewError("set job status", err)
	}

	if applied {
		t.notify(jobKey{campaignID, resourceID}, status)
	}

	return applied, nil
}

// Watch returns a channel delivering the terminal status of the job once it
// finishes. The channel is buffered and closed after delivery.
func (t *Tracker) Watch(campaignID uuid.UUID, resourceID string) <-chan model.JobStatus {
	ch := make(chan model.JobStatus, 1)
	key := jobKey{campaignID, resourceID}

	t.mu.Lock()
	t.watchers[key] = append(t.watchers[key], ch)
	t.mu.Unlock()

	return ch
}

func (t *Tracker) notify(key jobKey, status model.JobStatus) {
	t.mu.Lock()
	channels := t.watchers[key]
	delete(t.watchers, key)
	t.mu.Unlock()

	for _, ch := range channels {
		ch <- status
		close(ch)
	}
}

// StartPolling starts the background poll loop and returns immediately. The
// loop checks watched jobs in staggered batches every interval and runs a
// slow full scan at the fallback interval to catch completion events applied
// by another process. Poll errors are logged, never surfaced.
func (t *Tracker) StartPolling(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.cfg.Interval)
		fallback := time.NewTicker(t.cfg.FallbackInterval)
		defer ticker.Stop()
		defer fallback.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.pollWatched(ctx)
			case <-fallback.C:
				t.pollWatched(ctx)
				t.logActiveBacklog(ctx)
			}
		}
	}()
}

// pollWatched checks every watched job, batched to avoid database bursts
func (t *Tracker) pollWatched(ctx context.Context) {
	t.mu.Lock()
	keys := make([]jobKey, 0, len(t.watchers))
	for key := range t.watchers {
		keys = append(keys, key)
	}
	t.mu.Unlock()

	batchSize := t.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(keys)
	}

	for start := 0; start < len(keys); start += batchSize {
		if start > 0 && t.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.cfg.BatchDelay):
			}
		}

		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		for _, key := range keys[start:end] {
			job, err := t.jobs.SelectJob(ctx, key.campaignID, key.resourceID)
			if err != nil {
				t.log.Warn("Job poll failed",
					slog.String("campaign_id", key.campaignID.String()),
					slog.String("resource_id", key.resourceID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if job != nil && job.Status.Terminal() {
				t.notify(key, job.Status)
			}
		}
	}
}

func (t *Tracker) logActiveBacklog(ctx context.Context) {
	active, err := t.jobs.SelectActiveJobs(ctx, t.cfg.BatchSize*10)
	if err != nil {
		t.log.Warn("Active job scan failed", slog.String("error", err.Error()))
		return
	}
	if len(active) > 0 {
		t.log.Info("Active extraction jobs", slog.Int("count", len(active)))
	}
}
