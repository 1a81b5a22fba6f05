package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunSession represents the preview_sessions table for Bun ORM
type BunSession struct {
	bun.BaseModel `bun:"table:preview_sessions,alias:ps"`

	ID           string    `bun:"id,pk"` // ULID as string
	FileName     string    `bun:"file_name,notnull"`
	MediaType    string    `bun:"media_type,notnull"`
	Size         int64     `bun:"size,notnull"`
	Hash         string    `bun:"hash,notnull"`
	Data         []byte    `bun:"data"`
	PageCount    int       `bun:"page_count,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	LastAccessed time.Time `bun:"last_accessed,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
}

// ToSession converts BunSession to Session
func (bs *BunSession) ToSession() (*Session, error) {
	parsedULID, err := ulid.Parse(bs.ID)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:           parsedULID,
		FileName:     bs.FileName,
		MediaType:    bs.MediaType,
		Size:         bs.Size,
		Hash:         bs.Hash,
		Data:         bs.Data,
		PageCount:    bs.PageCount,
		CreatedAt:    bs.CreatedAt,
		LastAccessed: bs.LastAccessed,
		ExpiresAt:    bs.ExpiresAt,
	}, nil
}

// FromSession converts Session to BunSession
func FromSession(session *Session) *BunSession {
	return &BunSession{
		ID:           session.ID.String(),
		FileName:     session.FileName,
		MediaType:    session.MediaType,
		Size:         session.Size,
		Hash:         session.Hash,
		Data:         session.Data,
		PageCount:    session.PageCount,
		CreatedAt:    session.CreatedAt.UTC(),
		LastAccessed: session.LastAccessed.UTC(),
		ExpiresAt:    session.ExpiresAt.UTC(),
	}
}

// BunJob represents the render_jobs table for Bun ORM
type BunJob struct {
	bun.BaseModel `bun:"table:render_jobs,alias:j"`

	ID          string     `bun:"id,pk"` // ULID as string
	Type        string     `bun:"type,notnull"`
	SessionID   string     `bun:"session_id"`
	Page        int        `bun:"page"`
	Status      string     `bun:"status,notnull"`
	ErrorKind   string     `bun:"error_kind"`
	Error       string     `bun:"error"`
	DurationMs  int64      `bun:"duration_ms"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToJob converts BunJob to Job
func (bj *BunJob) ToJob() (*Job, error) {
	parsedULID, err := ulid.Parse(bj.ID)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          parsedULID,
		Type:        JobType(bj.Type),
		SessionID:   bj.SessionID,
		Page:        bj.Page,
		Status:      JobStatus(bj.Status),
		ErrorKind:   bj.ErrorKind,
		Error:       bj.Error,
		DurationMs:  bj.DurationMs,
		CreatedAt:   bj.CreatedAt,
		UpdatedAt:   bj.UpdatedAt,
		CompletedAt: bj.CompletedAt,
	}, nil
}

// FromJob converts Job to BunJob
func FromJob(job *Job) *BunJob {
	return &BunJob{
		ID:          job.ID.String(),
		Type:        string(job.Type),
		SessionID:   job.SessionID,
		Page:        job.Page,
		Status:      string(job.Status),
		ErrorKind:   job.ErrorKind,
		Error:       job.Error,
		DurationMs:  job.DurationMs,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
}
