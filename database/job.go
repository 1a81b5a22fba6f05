package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeRender is one page render of a session or a one-shot upload
	JobTypeRender JobType = "render"
	// JobTypeSweep is a scheduled cleanup of expired sessions and old jobs
	JobTypeSweep JobType = "sweep"
)

// Job is one recorded render or maintenance run
type Job struct {
	ID          ulid.ULID  `json:"id"`
	Type        JobType    `json:"type"`
	SessionID   string     `json:"sessionId,omitempty"` // empty for one-shot previews
	Page        int        `json:"page,omitempty"`
	Status      JobStatus  `json:"status"`
	ErrorKind   string     `json:"errorKind,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMs  int64      `json:"durationMs"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CreateJob records a job in the running state
func (b *BunDB) CreateJob(ctx context.Context, jobType JobType, sessionID string, page int) (*Job, error) {
	now := time.Now().UTC()
	jobID, err := CalculateUUID(now)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        jobID,
		Type:      jobType,
		SessionID: sessionID,
		Page:      page,
		Status:    JobStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = b.db.NewInsert().
		Model(FromJob(job)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// CompleteJob marks a job as completed
func (b *BunDB) CompleteJob(ctx context.Context, jobID ulid.ULID, duration time.Duration) error {
	return b.finishJob(ctx, jobID, JobStatusCompleted, "", "", duration)
}

// FailJob marks a job as failed with the preview error kind and message
func (b *BunDB) FailJob(ctx context.Context, jobID ulid.ULID, errorKind string, errorMsg string, duration time.Duration) error {
	return b.finishJob(ctx, jobID, JobStatusFailed, errorKind, errorMsg, duration)
}

func (b *BunDB) finishJob(ctx context.Context, jobID ulid.ULID, status JobStatus, errorKind, errorMsg string, duration time.Duration) error {
	now := time.Now().UTC()

	_, err := b.db.NewUpdate().
		Model((*BunJob)(nil)).
		Set("status = ?", status).
		Set("error_kind = ?", errorKind).
		Set("error = ?", errorMsg).
		Set("duration_ms = ?", duration.Milliseconds()).
		Set("updated_at = ?", now).
		Set("completed_at = ?", now).
		Where("id = ?", jobID.String()).
		Exec(ctx)

	return err
}

// GetJob retrieves a job by ID
func (b *BunDB) GetJob(ctx context.Context, jobID ulid.ULID) (*Job, error) {
	bunJob := new(BunJob)

	err := b.db.NewSelect().
		Model(bunJob).
		Where("id = ?", jobID.String()).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return bunJob.ToJob()
}

// GetRecentJobs retrieves the most recent jobs with pagination
func (b *BunDB) GetRecentJobs(ctx context.Context, limit, offset int) ([]Job, error) {
	var bunJobs []BunJob

	err := b.db.NewSelect().
		Model(&bunJobs).
		Order("created_at DESC", "id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return bunJobsToJobs(bunJobs)
}

// DeleteOldJobs deletes finished jobs older than the specified duration
func (b *BunDB) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoffTime := time.Now().UTC().Add(-olderThan)

	result, err := b.db.NewDelete().
		Model((*BunJob)(nil)).
		Where("status IN (?)", bun.In([]string{string(JobStatusCompleted), string(JobStatusFailed)})).
		Where("completed_at < ?", cutoffTime).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	return int(count), err
}

// bunJobsToJobs converts a slice of BunJob to Job
func bunJobsToJobs(bunJobs []BunJob) ([]Job, error) {
	jobs := make([]Job, 0, len(bunJobs))
	for _, bunJob := range bunJobs {
		job, err := bunJob.ToJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}
