package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/harvester/internal/core/domain"
)

var (
	// ErrResultNotFound is returned when no record exists for a job.
	ErrResultNotFound = errors.New("job result not found")
)

// JobRecord is the stored outcome of one job execution.
type JobRecord struct {
	Result    domain.Result `json:"result"`
	State     string        `json:"state"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ResultRepository persists job outcomes.
type ResultRepository interface {
	// Save inserts or replaces the record of a job
	Save(ctx context.Context, rec *JobRecord) error

	// Get retrieves the record of a job
	Get(ctx context.Context, jobID string) (*JobRecord, error)

	// List returns the most recently updated records, newest first.
	// A limit of zero or less returns everything.
	List(ctx context.Context, limit int) ([]*JobRecord, error)
}
