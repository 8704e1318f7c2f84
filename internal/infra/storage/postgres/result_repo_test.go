package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
)

var columns = []string{
	"job_id", "task_id", "backend", "state", "last_uuid", "max_date", "nitems",
	"last_offset", "nresumed", "error", "updated_at",
}

func newMockRepo(t *testing.T) (*ResultRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewResultRepo(sqlx.NewDb(db, "pgx")), mock
}

func TestResultRepo_Save(t *testing.T) {
	repo, mock := newMockRepo(t)

	maxDate := 1500000000.5
	offset := int64(12)
	res := domain.NewResult("job-1", "task-1", "jsonl")
	res.LastUUID = "u-3"
	res.MaxDate = &maxDate
	res.Offset = &offset
	res.NItems = 3
	now := time.Now()

	mock.ExpectExec("INSERT INTO job_results").
		WithArgs("job-1", "task-1", "jsonl", "success", "u-3",
			sql.NullFloat64{Float64: maxDate, Valid: true}, int64(3),
			sql.NullInt64{Int64: offset, Valid: true}, 0, "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Save(context.Background(), &storage.JobRecord{Result: *res, State: "success", UpdatedAt: now})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestResultRepo_Get(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
		check     func(t *testing.T, rec *storage.JobRecord)
	}{
		{
			name: "returns record when exists",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(columns).
					AddRow("job-1", "task-1", "jsonl", "success", "u-3", 42.0, int64(3), int64(7), 1, "", now)
				mock.ExpectQuery("SELECT (.+) FROM job_results WHERE job_id").
					WithArgs("job-1").
					WillReturnRows(rows)
			},
			check: func(t *testing.T, rec *storage.JobRecord) {
				if rec.Result.NItems != 3 || rec.Result.NResumed != 1 || rec.State != "success" {
					t.Errorf("unexpected record: %+v", rec)
				}
				if rec.Result.MaxDate == nil || *rec.Result.MaxDate != 42 {
					t.Errorf("unexpected max date: %v", rec.Result.MaxDate)
				}
				if rec.Result.Offset == nil || *rec.Result.Offset != 7 {
					t.Errorf("unexpected offset: %v", rec.Result.Offset)
				}
			},
		},
		{
			name: "null progress stays absent",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(columns).
					AddRow("job-1", "", "jsonl", "aborted", "", nil, int64(0), nil, 0, "boom", now)
				mock.ExpectQuery("SELECT (.+) FROM job_results WHERE job_id").
					WithArgs("job-1").
					WillReturnRows(rows)
			},
			check: func(t *testing.T, rec *storage.JobRecord) {
				if rec.Result.MaxDate != nil || rec.Result.Offset != nil {
					t.Errorf("expected nil progress, got %+v", rec.Result)
				}
				if rec.Error != "boom" {
					t.Errorf("expected error text, got %q", rec.Error)
				}
			},
		},
		{
			name: "returns not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM job_results WHERE job_id").
					WithArgs("job-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: storage.ErrResultNotFound,
		},
		{
			name: "returns error on database failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM job_results WHERE job_id").
					WithArgs("job-1").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tc.setupMock(mock)

			rec, err := repo.Get(context.Background(), "job-1")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			tc.check(t, rec)
		})
	}
}

func TestResultRepo_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows(columns).
		AddRow("job-2", "", "jsonl", "success", "b", nil, int64(1), nil, 0, "", now).
		AddRow("job-1", "", "jsonl", "aborted", "a", nil, int64(0), nil, 2, "boom", now.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM job_results ORDER BY updated_at DESC LIMIT").
		WithArgs(10).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Result.JobID != "job-2" || list[1].Result.NResumed != 2 {
		t.Errorf("unexpected list: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
