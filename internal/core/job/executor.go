package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/harvester/internal/core/backend"
	"github.com/vietddude/harvester/internal/core/domain"
)

// Request describes one job execution.
type Request struct {
	JobID          string
	TaskID         string
	Backend        string
	Args           domain.Args
	Queue          string
	CachePath      string
	FetchFromCache bool

	// MaxRetries bounds the number of runs. Zero or less uses DefaultMaxRetries.
	MaxRetries int
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Registry  *backend.Registry
	Queue     Queue
	OpenCache CacheOpener
	Version   string

	// Policy spaces resumed attempts. Nil resumes immediately.
	Policy RetryPolicy

	// Classifier decides which failures are retried. Nil uses DefaultClassifier.
	Classifier Classifier

	// OnTransition, when set, observes every state change.
	OnTransition func(Transition)

	Logger *slog.Logger
}

// Executor runs jobs under the bounded retry/resume policy.
type Executor struct {
	cfg      ExecutorConfig
	policy   RetryPolicy
	classify Classifier
	log      *slog.Logger
}

// NewExecutor creates an executor, filling in defaults.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		cfg:      cfg,
		policy:   cfg.Policy,
		classify: cfg.Classifier,
		log:      cfg.Logger,
	}
	if e.policy == nil {
		e.policy = NoDelay{}
	}
	if e.classify == nil {
		e.classify = DefaultClassifier
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Execute runs the requested backend until it succeeds, fails with a
// permanent error, or runs out of retries.
//
// After a transient failure the cache, if written to, is rolled back to its
// snapshot and disabled for the remaining attempts; the job is then resumed
// from its progress record. The error returned on abort is the one raised by
// the last attempt.
func (e *Executor) Execute(ctx context.Context, req Request) (*domain.Result, error) {
	j, err := New(Config{
		ID:        req.JobID,
		TaskID:    req.TaskID,
		Backend:   req.Backend,
		QueueName: req.Queue,
		Registry:  e.cfg.Registry,
		Queue:     e.cfg.Queue,
		OpenCache: e.cfg.OpenCache,
		Version:   e.cfg.Version,
		Logger:    e.log,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := j.DisableCache(); err != nil {
			e.log.Warn("Failed to close job cache", "job", j.ID(), "error", err)
		}
	}()

	log := e.log.With("job", req.JobID, "task", req.TaskID, "backend", req.Backend)
	log.Debug("Running job")

	if !j.HasCaching() && (req.CachePath != "" || req.FetchFromCache) {
		return nil, fmt.Errorf("%w: cache attributes set but backend %s does not support caching",
			ErrInvalidOperation, req.Backend)
	}

	if req.CachePath != "" {
		if err := j.InitializeCache(req.CachePath, !req.FetchFromCache); err != nil {
			return nil, err
		}
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	writableCache := req.CachePath != "" && !req.FetchFromCache

	resume := false
	failures := 0
	state := StateRunning
	e.transition(req, "", state, 1, nil)

	for {
		err := j.Run(ctx, req.Args, resume, req.FetchFromCache)
		if err == nil {
			e.transition(req, state, StateSuccess, failures+1, nil)
			break
		}

		if e.classify(err) == CategoryPermanent {
			log.Error("Job failed with a non-retryable error", "error", err)
			e.transition(req, state, StateAborted, failures+1, err)
			return nil, err
		}

		log.Debug("Error running job", "error", err)
		failures++

		if writableCache {
			if rerr := j.RecoverCache(); rerr != nil {
				log.Error("Cache recovery failed", "error", rerr)
			}
			if cerr := j.DisableCache(); cerr != nil {
				log.Warn("Failed to close job cache", "error", cerr)
			}
		}

		if !j.HasResuming() || failures >= maxRetries {
			log.Error("Cancelling job", "failures", failures, "max_retries", maxRetries, "error", err)
			e.transition(req, state, StateAborted, failures, err)
			return nil, err
		}

		log.Warn("Resuming job due to a failure", "n", failures, "max", maxRetries, "error", err)
		e.transition(req, state, StateRetrying, failures, err)

		if err := wait(ctx, e.policy.Delay(failures)); err != nil {
			e.transition(req, StateRetrying, StateAborted, failures, err)
			return nil, err
		}

		resume = true
		e.transition(req, StateRetrying, StateRunning, failures+1, nil)
		state = StateRunning
	}

	result := j.Result()
	log.Debug("Job completed", "items", result.NItems, "resumed", result.NResumed)
	return result, nil
}

func (e *Executor) transition(req Request, from, to State, attempt int, err error) {
	if e.cfg.OnTransition == nil {
		return
	}
	e.cfg.OnTransition(Transition{
		JobID:     req.JobID,
		Backend:   req.Backend,
		From:      from,
		To:        to,
		Attempt:   attempt,
		Err:       err,
		Timestamp: time.Now(),
	})
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
