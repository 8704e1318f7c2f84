package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/vietddude/harvester/internal/infra/storage"
)

// ResultRepo keeps job records in memory.
type ResultRepo struct {
	mu      sync.RWMutex
	records map[string]*storage.JobRecord
}

func NewResultRepo() *ResultRepo {
	return &ResultRepo{records: make(map[string]*storage.JobRecord)}
}

func (r *ResultRepo) Save(ctx context.Context, rec *storage.JobRecord) error {
	if rec.Result.JobID == "" {
		return errors.New("job record requires a job id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.Result.JobID] = &cp
	return nil
}

func (r *ResultRepo) Get(ctx context.Context, jobID string) (*storage.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[jobID]
	if !ok {
		return nil, storage.ErrResultNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *ResultRepo) List(ctx context.Context, limit int) ([]*storage.JobRecord, error) {
	r.mu.RLock()
	out := make([]*storage.JobRecord, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *storage.JobRecord) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
