package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
)

// ResultRepo implements storage.ResultRepository using PostgreSQL.
type ResultRepo struct {
	db *sqlx.DB
}

// NewResultRepo creates a new PostgreSQL result repository.
func NewResultRepo(db *sqlx.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

type resultRow struct {
	JobID      string          `db:"job_id"`
	TaskID     string          `db:"task_id"`
	Backend    string          `db:"backend"`
	State      string          `db:"state"`
	LastUUID   string          `db:"last_uuid"`
	MaxDate    sql.NullFloat64 `db:"max_date"`
	NItems     int64           `db:"nitems"`
	LastOffset sql.NullInt64   `db:"last_offset"`
	NResumed   int             `db:"nresumed"`
	Error      string          `db:"error"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

const selectColumns = `job_id, task_id, backend, state, last_uuid, max_date, nitems,
	last_offset, nresumed, error, updated_at`

func toRow(rec *storage.JobRecord) resultRow {
	row := resultRow{
		JobID:     rec.Result.JobID,
		TaskID:    rec.Result.TaskID,
		Backend:   rec.Result.Backend,
		State:     rec.State,
		LastUUID:  rec.Result.LastUUID,
		NItems:    int64(rec.Result.NItems),
		NResumed:  rec.Result.NResumed,
		Error:     rec.Error,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Result.MaxDate != nil {
		row.MaxDate = sql.NullFloat64{Float64: *rec.Result.MaxDate, Valid: true}
	}
	if rec.Result.Offset != nil {
		row.LastOffset = sql.NullInt64{Int64: *rec.Result.Offset, Valid: true}
	}
	return row
}

func (row resultRow) record() *storage.JobRecord {
	rec := &storage.JobRecord{
		Result: domain.Result{
			JobID:    row.JobID,
			TaskID:   row.TaskID,
			Backend:  row.Backend,
			LastUUID: row.LastUUID,
			NItems:   int(row.NItems),
			NResumed: row.NResumed,
		},
		State:     row.State,
		Error:     row.Error,
		UpdatedAt: row.UpdatedAt,
	}
	if row.MaxDate.Valid {
		v := row.MaxDate.Float64
		rec.Result.MaxDate = &v
	}
	if row.LastOffset.Valid {
		v := row.LastOffset.Int64
		rec.Result.Offset = &v
	}
	return rec
}

// Save upserts the record of a job.
func (r *ResultRepo) Save(ctx context.Context, rec *storage.JobRecord) error {
	row := toRow(rec)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_results
			(job_id, task_id, backend, state, last_uuid, max_date, nitems, last_offset, nresumed, error, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id) DO UPDATE SET
			task_id = EXCLUDED.task_id,
			backend = EXCLUDED.backend,
			state = EXCLUDED.state,
			last_uuid = EXCLUDED.last_uuid,
			max_date = EXCLUDED.max_date,
			nitems = EXCLUDED.nitems,
			last_offset = EXCLUDED.last_offset,
			nresumed = EXCLUDED.nresumed,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		row.JobID, row.TaskID, row.Backend, row.State, row.LastUUID, row.MaxDate,
		row.NItems, row.LastOffset, row.NResumed, row.Error, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job result: %w", err)
	}
	return nil
}

// Get retrieves the record of a job.
func (r *ResultRepo) Get(ctx context.Context, jobID string) (*storage.JobRecord, error) {
	var row resultRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+selectColumns+` FROM job_results WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job result: %w", err)
	}
	return row.record(), nil
}

// List returns the most recently updated records.
func (r *ResultRepo) List(ctx context.Context, limit int) ([]*storage.JobRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM job_results ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list job results: %w", err)
	}

	out := make([]*storage.JobRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}
