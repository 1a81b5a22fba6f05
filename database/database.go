package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ErrNotFound is returned when a session or job does not exist
var ErrNotFound = errors.New("record not found")

// Session is one open preview: the uploaded source file and its lifetime. Only
// the source bytes are stored; pages are decoded again on every request.
type Session struct {
	ID           ulid.ULID `json:"id"`
	FileName     string    `json:"fileName"`
	MediaType    string    `json:"mediaType"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	Data         []byte    `json:"-"`
	PageCount    int       `json:"pageCount"` // last count reported by a render, 0 until then
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Repository defines database operations
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	// Session methods
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id ulid.ULID) (*Session, error)
	TouchSession(ctx context.Context, id ulid.ULID, pageCount int, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id ulid.ULID) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
	// Job tracking methods
	CreateJob(ctx context.Context, jobType JobType, sessionID string, page int) (*Job, error)
	CompleteJob(ctx context.Context, jobID ulid.ULID, duration time.Duration) error
	FailJob(ctx context.Context, jobID ulid.ULID, errorKind string, errorMsg string, duration time.Duration) error
	GetJob(ctx context.Context, jobID ulid.ULID) (*Job, error)
	GetRecentJobs(ctx context.Context, limit, offset int) ([]Job, error)
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewSession builds a session for data that lives for ttl
func NewSession(fileName, mediaType string, data []byte, ttl time.Duration) (*Session, error) {
	now := time.Now().UTC()
	id, err := CalculateUUID(now)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:           id,
		FileName:     fileName,
		MediaType:    mediaType,
		Size:         int64(len(data)),
		Hash:         calculateHash(data),
		Data:         data,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(ttl),
	}, nil
}

// calculateHash returns the hex sha256 of the uploaded bytes
func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateUUID for the incoming file
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
