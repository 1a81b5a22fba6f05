package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/drummonds/docpreview/database"
)

// sweepJobFunc removes expired sessions and old finished jobs
func (serverHandler *ServerHandler) sweepJobFunc() {
	// Add panic recovery to prevent entire application crash
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in sweep job", "panic", r)
		}
	}()

	ctx := context.Background()
	job, err := serverHandler.DB.CreateJob(ctx, database.JobTypeSweep, "", 0)
	if err != nil {
		Logger.Error("Failed to create sweep job", "error", err)
		return
	}

	started := time.Now()
	sessions, jobs, err := serverHandler.sweep(ctx, started)
	if err != nil {
		Logger.Error("Sweep failed", "jobID", job.ID.String(), "error", err)
		if err := serverHandler.DB.FailJob(ctx, job.ID, "", err.Error(), time.Since(started)); err != nil {
			Logger.Error("Failed to mark sweep job as failed", "error", err)
		}
		return
	}

	if err := serverHandler.DB.CompleteJob(ctx, job.ID, time.Since(started)); err != nil {
		Logger.Error("Failed to mark sweep job as complete", "error", err)
	}
	Logger.Info("Sweep job completed", "jobID", job.ID.String(), "sessions", sessions, "jobs", jobs)
}

// sweep does the deleting for sweepJobFunc
func (serverHandler *ServerHandler) sweep(ctx context.Context, now time.Time) (sessions, jobs int, err error) {
	sessions, err = serverHandler.DB.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if serverHandler.ServerConfig.JobRetention > 0 {
		jobs, err = serverHandler.DB.DeleteOldJobs(ctx, serverHandler.ServerConfig.JobRetention)
		if err != nil {
			return sessions, 0, fmt.Errorf("failed to delete old jobs: %w", err)
		}
	}
	return sessions, jobs, nil
}
