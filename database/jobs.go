package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// JobsDBHandlerFunctions defines the interface for extraction job database
// operations.
type JobsDBHandlerFunctions interface {
	AcquireJob(ctx context.Context, campaignID uuid.UUID, resourceID string) (bool, error)
	SetJobStatus(ctx context.Context, campaignID uuid.UUID, resourceID string, status model.JobStatus, jobErr string) (bool, error)
	SelectJob(ctx context.Context, campaignID uuid.UUID, resourceID string) (*model.ExtractionJob, error)
	SelectActiveJobs(ctx context.Context, limit int) ([]*model.ExtractionJob, error)
}

// JobsDBHandler handles extraction job database operations. The status
// column is the single source of truth for job state.
type JobsDBHandler struct {
	db *helper.Database
}

// NewJobsDBHandler creates a new extraction jobs database handler.
func NewJobsDBHandler(db *helper.Database, force bool) (*JobsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	jobsDbHandler := &JobsDBHandler{
		db: db,
	}

	err := loadSql.LoadJobsSql(jobsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load jobs sql", err)
	}

	err = jobsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized JobsDBHandler")

	return jobsDbHandler, nil
}

// CreateTable creates the 'extraction_jobs' table in the database.
func (h *JobsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_jobs();`)
	if err != nil {
		log.Panicf("error initializing extraction_jobs table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table extraction_jobs")

	return nil
}

// AcquireJob claims the job slot for (campaignID, resourceID). It returns
// false when a pending or processing job already exists. The claim is atomic,
// concurrent calls collapse to a single active job.
func (h *JobsDBHandler) AcquireJob(ctx context.Context, campaignID uuid.UUID, resourceID string) (bool, error) {
	var acquired bool
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM acquire_extraction_job($1, $2)`,
		campaignID,
		resourceID,
	).Scan(&acquired)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return acquired, nil
}

// SetJobStatus applies an idempotent status transition. It returns true if
// the row now carries the requested status, false if the transition was not
// allowed (e.g. a terminal row being moved backwards) or the job is unknown.
func (h *JobsDBHandler) SetJobStatus(ctx context.Context, campaignID uuid.UUID, resourceID string, status model.JobStatus, jobErr string) (bool, error) {
	var applied bool
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM set_extraction_job_status($1, $2, $3, $4)`,
		campaignID,
		resourceID,
		status,
		jobErr,
	).Scan(&applied)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return applied, nil
}

// SelectJob retrieves the job for (campaignID, resourceID), or nil if none
// was ever enqueued
func (h *JobsDBHandler) SelectJob(ctx context.Context, campaignID uuid.UUID, resourceID string) (*model.ExtractionJob, error) {
	job := &model.ExtractionJob{}
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_extraction_job($1, $2)`,
		campaignID,
		resourceID,
	).Scan(
		&job.CampaignID,
		&job.ResourceID,
		&job.Status,
		&job.Error,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// SelectActiveJobs lists pending and processing jobs across campaigns,
// oldest first
func (h *JobsDBHandler) SelectActiveJobs(ctx context.Context, limit int) ([]*model.ExtractionJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_active_extraction_jobs($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var jobs []*model.ExtractionJob
	for rows.Next() {
		job := &model.ExtractionJob{}
		err := rows.Scan(
			&job.CampaignID,
			&job.ResourceID,
			&job.Status,
			&job.Error,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return jobs, nil
}
