package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

// Storage boundaries the handlers depend on. The concrete repos in
// internal/store satisfy them; tests substitute fakes.

// NoteStore persists subject notes. Upsert must keep at most one note per
// (device, subject) pair, replacing the previous note on a repeat upload.
type NoteStore interface {
	Upsert(ctx context.Context, n *models.Note) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error)
	List(ctx context.Context, deviceID uuid.UUID) ([]*models.Note, error)
	ListCompleted(ctx context.Context, deviceID uuid.UUID) (map[models.Subject]string, error)
	Delete(ctx context.Context, deviceID, id uuid.UUID) (string, error)
}

// SessionStore holds the single active test session per device.
type SessionStore interface {
	Get(ctx context.Context, deviceID uuid.UUID) (*models.TestSession, error)
	SaveAnswer(ctx context.Context, deviceID uuid.UUID, questionIndex int, selected string) error
	Clear(ctx context.Context, deviceID uuid.UUID) error
}

// ResultStore is the append-only test history.
type ResultStore interface {
	Append(ctx context.Context, res *models.TestResult) error
	GetByID(ctx context.Context, deviceID, id uuid.UUID) (*models.TestResult, error)
	List(ctx context.Context, deviceID uuid.UUID) ([]*models.TestResult, error)
}

// JobStore records background jobs for polling.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// JobQueue pushes serialized jobs onto a worker queue.
type JobQueue interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}
