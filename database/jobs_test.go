package database

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsNewJobsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewJobsDBHandler", func(t *testing.T) {
		jobsDbHandler, err := NewJobsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewJobsDBHandler to not return an error")
		require.NotNil(t, jobsDbHandler, "Expected NewJobsDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewJobsDBHandler with nil database", func(t *testing.T) {
		_, err := NewJobsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating JobsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestJobsAcquire(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()
	campaignID := uuid.New()

	jobsDbHandler, err := NewJobsDBHandler(database, true)
	require.NoError(t, err)

	t.Run("First acquire claims the slot", func(t *testing.T) {
		acquired, err := jobsDbHandler.AcquireJob(ctx, campaignID, "res_first")
		assert.NoError(t, err)
		assert.True(t, acquired, "Expected first acquire to succeed")
	})

	t.Run("Second acquire while pending is refused", func(t *testing.T) {
		acquired, err := jobsDbHandler.AcquireJob(ctx, campaignID, "res_first")
		assert.NoError(t, err)
		assert.False(t, acquired, "Expected acquire to be refused while a job is active")
	})

	t.Run("Acquire after terminal status restarts the job", func(t *testing.T) {
		applied, err := jobsDbHandler.SetJobStatus(ctx, campaignID, "res_first", model.JobStatusFailed, "model timeout")
		require.NoError(t, err)
		require.True(t, applied)

		acquired, err := jobsDbHandler.AcquireJob(ctx, campaignID, "res_first")
		assert.NoError(t, err)
		assert.True(t, acquired, "Expected terminal job to be restartable")

		job, err := jobsDbHandler.SelectJob(ctx, campaignID, "res_first")
		assert.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Empty(t, job.Error, "Expected the previous error to be cleared")
	})

	t.Run("Concurrent acquires collapse to one claim", func(t *testing.T) {
		const attempts = 8
		var wg sync.WaitGroup
		results := make([]bool, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				acquired, err := jobsDbHandler.AcquireJob(ctx, campaignID, "res_concurrent")
				assert.NoError(t, err)
				results[i] = acquired
			}(i)
		}
		wg.Wait()

		claims := 0
		for _, acquired := range results {
			if acquired {
				claims++
			}
		}
		assert.Equal(t, 1, claims, "Expected exactly one concurrent acquire to win")
	})
}

func TestJobsSetStatus(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()
	campaignID := uuid.New()

	jobsDbHandler, err := NewJobsDBHandler(database, true)
	require.NoError(t, err)

	acquired, err := jobsDbHandler.AcquireJob(ctx, campaignID, "res_status")
	require.NoError(t, err)
	require.True(t, acquired)

	t.Run("Pending to processing", func(t *testing.T) {
		applied, err := jobsDbHandler.SetJobStatus(ctx, campaignID, "res_status", model.JobStatusProcessing, "")
		assert.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("Repeating the current status is idempotent", func(t *testing.T) {
		applied, err := jobsDbHandler.SetJobStatus(ctx, campaignID, "res_status", model.JobStatusProcessing, "")
		assert.NoError(t, err)
		assert.True(t, applied, "Expected repeating the current status to report success")
	})

	t.Run("Processing to completed", func(t *testing.T) {
		applied, err := jobsDbHandler.SetJobStatus(ctx, campaignID, "res_status", model.JobStatusCompleted, "")
		assert.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("Terminal job never moves backwards", func(t *testing.T) {
		applied, err := jobsDbHandler.SetJobStatus(ctx, campaignID, "res_status", model.JobStatusProcessing, "")
		assert.NoError(t, err)
		assert.False(t, applied, "Expected completed job to stay completed")

		job, err := jobsDbHandler.SelectJob(ctx, campaignID, "res_status")
		assert.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, model.JobStatusCompleted, job.Status)
	})

	t.Run("Unknown job is not transitionable", func(t *testing.T) {
		applied, err := jobsDbHandler.SetJobStatus(ctx, campaignID, "res_never_enqueued", model.JobStatusCompleted, "")
		assert.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestJobsSelect(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()
	campaignID := uuid.New()

	jobsDbHandler, err := NewJobsDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Never enqueued resource yields nil", func(t *testing.T) {
		job, err := jobsDbHandler.SelectJob(ctx, campaignID, "res_nothing")
		assert.NoError(t, err, "Expected Select of unknown job to not return an error")
		assert.Nil(t, job, "Expected nil for a resource that was never enqueued")
	})

	t.Run("Active jobs listing includes pending and processing", func(t *testing.T) {
		for _, resourceID := range []string{"res_a", "res_b", "res_c"} {
			acquired, err := jobsDbHandler.AcquireJob(ctx, campaignID, resourceID)
			require.NoError(t, err)
			require.True(t, acquired)
		}
		_, err = jobsDbHandler.SetJobStatus(ctx, campaignID, "res_b", model.JobStatusProcessing, "")
		require.NoError(t, err)
		_, err = jobsDbHandler.SetJobStatus(ctx, campaignID, "res_c", model.JobStatusCompleted, "")
		require.NoError(t, err)

		active, err := jobsDbHandler.SelectActiveJobs(ctx, 100)
		assert.NoError(t, err)

		byResource := map[string]model.JobStatus{}
		for _, job := range active {
			if job.CampaignID == campaignID {
				byResource[job.ResourceID] = job.Status
			}
		}
		assert.Equal(t, model.JobStatusPending, byResource["res_a"])
		assert.Equal(t, model.JobStatusProcessing, byResource["res_b"])
		assert.NotContains(t, byResource, "res_c", "Expected completed job to be excluded")
	})
}
