package control

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/harvester/internal/core/backend"
	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/core/job"
	"github.com/vietddude/harvester/internal/infra/storage"
	"github.com/vietddude/harvester/internal/metrics"
)

// Request asks the runner to execute one job.
type Request struct {
	JobID   string // generated when empty
	TaskID  string
	Backend string
	Args    domain.Args
	Queue   string // defaults to the runner queue

	// Cache stores fetched data under the runner cache dir, keyed by task.
	Cache          bool
	FetchFromCache bool
	MaxRetries     int
}

// RunnerConfig holds the dependencies of a Runner.
type RunnerConfig struct {
	Registry  *backend.Registry
	Queue     job.Queue
	Results   storage.ResultRepository
	OpenCache job.CacheOpener
	Policy    job.RetryPolicy

	DefaultQueue string
	CacheDir     string
	MaxRetries   int
	Version      string

	Logger *slog.Logger
}

// Runner executes jobs and records their outcome.
type Runner struct {
	cfg      RunnerConfig
	executor *job.Executor
	log      *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = backend.Default
	}

	r := &Runner{cfg: cfg, log: log}
	r.executor = job.NewExecutor(job.ExecutorConfig{
		Registry:     cfg.Registry,
		Queue:        countingQueue{cfg.Queue},
		OpenCache:    cfg.OpenCache,
		Version:      cfg.Version,
		Policy:       cfg.Policy,
		OnTransition: observe,
		Logger:       log,
	})
	return r
}

// Run executes req and persists the final state of the job.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.Result, error) {
	jreq, err := r.jobRequest(req)
	if err != nil {
		return nil, err
	}

	log := r.log.With("job", jreq.JobID, "backend", jreq.Backend)
	log.Info("Starting job", "queue", jreq.Queue, "cache", jreq.CachePath, "from_cache", jreq.FetchFromCache)

	start := time.Now()
	result, runErr := r.executor.Execute(ctx, jreq)
	metrics.JobDuration.WithLabelValues(jreq.Backend).Observe(time.Since(start).Seconds())

	rec := &storage.JobRecord{UpdatedAt: time.Now()}
	if runErr != nil {
		rec.Result = *domain.NewResult(jreq.JobID, jreq.TaskID, jreq.Backend)
		rec.State = string(job.StateAborted)
		rec.Error = runErr.Error()
		log.Error("Job failed", "error", runErr)
	} else {
		rec.Result = *result
		rec.State = string(job.StateSuccess)
		log.Info("Job finished", "items", result.NItems, "resumed", result.NResumed, "last_uuid", result.LastUUID)
	}

	if r.cfg.Results != nil {
		if err := r.cfg.Results.Save(ctx, rec); err != nil {
			log.Error("Failed to save job result", "error", err)
			if runErr == nil {
				return result, fmt.Errorf("failed to save job result: %w", err)
			}
		}
	}

	return result, runErr
}

// Backends lists the registered backends.
func (r *Runner) Backends() []backend.Descriptor {
	names := r.cfg.Registry.Names()
	out := make([]backend.Descriptor, 0, len(names))
	for _, name := range names {
		if d, ok := r.cfg.Registry.Lookup(name); ok {
			out = append(out, d)
		}
	}
	return out
}

func (r *Runner) jobRequest(req Request) (job.Request, error) {
	if req.Backend == "" {
		return job.Request{}, fmt.Errorf("%w: backend name is required", job.ErrInvalidArgument)
	}
	if _, ok := r.cfg.Registry.Lookup(req.Backend); !ok {
		return job.Request{}, fmt.Errorf("%w: %s", job.ErrNotFound, req.Backend)
	}

	jreq := job.Request{
		JobID:          req.JobID,
		TaskID:         req.TaskID,
		Backend:        req.Backend,
		Args:           req.Args,
		Queue:          req.Queue,
		FetchFromCache: req.FetchFromCache,
		MaxRetries:     req.MaxRetries,
	}
	if jreq.JobID == "" {
		jreq.JobID = uuid.NewString()
	}
	if jreq.Queue == "" {
		jreq.Queue = r.cfg.DefaultQueue
	}
	if jreq.MaxRetries <= 0 {
		jreq.MaxRetries = r.cfg.MaxRetries
	}

	if req.Cache || req.FetchFromCache {
		if r.cfg.CacheDir == "" {
			return job.Request{}, fmt.Errorf("%w: caching requested but no cache dir configured", job.ErrInvalidOperation)
		}
		key := req.TaskID
		if key == "" {
			key = jreq.JobID
		}
		jreq.CachePath = filepath.Join(r.cfg.CacheDir, req.Backend, key)
	}
	return jreq, nil
}

type countingQueue struct {
	job.Queue
}

func (q countingQueue) Push(ctx context.Context, queue string, item domain.Item) error {
	if err := q.Queue.Push(ctx, queue, item); err != nil {
		return err
	}
	metrics.ItemsPushed.WithLabelValues(queue).Inc()
	return nil
}

func observe(tr job.Transition) {
	switch {
	case tr.To == job.StateRunning:
		metrics.JobAttempts.WithLabelValues(tr.Backend).Inc()
		if tr.From == job.StateRetrying {
			metrics.JobResumes.WithLabelValues(tr.Backend).Inc()
		}
	case tr.To.IsTerminal():
		metrics.JobOutcomes.WithLabelValues(tr.Backend, string(tr.To)).Inc()
	}
}
