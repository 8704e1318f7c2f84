// Package job runs data-collector backends and keeps enough progress state to
// resume a failed run where it stopped.
//
// A Job owns one backend descriptor and, optionally, one cache handle. Each
// call to Run drives the backend, pushes every produced item to the output
// queue and updates the job's progress record. Executor wraps Run in the
// bounded retry/resume loop.
package job

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"math"
	"time"

	"github.com/vietddude/harvester/internal/core/backend"
	"github.com/vietddude/harvester/internal/core/domain"
)

// Queue is the output sink items are pushed to, one at a time.
type Queue interface {
	Push(ctx context.Context, queue string, item domain.Item) error
}

// Cache is a job-scoped local store that can snapshot and roll back its
// contents.
type Cache interface {
	Backup() error
	Recover() error
	Path() string
	Close() error
}

// CacheOpener opens the cache stored under path.
type CacheOpener func(path string) (Cache, error)

// Config holds everything needed to build a Job.
type Config struct {
	ID        string
	TaskID    string
	Backend   string
	QueueName string

	Registry  *backend.Registry
	Queue     Queue
	OpenCache CacheOpener

	// Version is stamped on every item the job pushes.
	Version string

	Logger *slog.Logger
}

// Job executes one backend and tracks its progress.
type Job struct {
	id        string
	taskID    string
	backend   string
	queueName string
	version   string

	desc      backend.Descriptor
	queue     Queue
	openCache CacheOpener
	cache     Cache
	result    *domain.Result
	log       *slog.Logger
}

// New resolves the backend and creates a job with an empty progress record.
func New(cfg Config) (*Job, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = backend.Default
	}

	desc, ok := registry.Lookup(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cfg.Backend)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Job{
		id:        cfg.ID,
		taskID:    cfg.TaskID,
		backend:   cfg.Backend,
		queueName: cfg.QueueName,
		version:   cfg.Version,
		desc:      desc,
		queue:     cfg.Queue,
		openCache: cfg.OpenCache,
		result:    domain.NewResult(cfg.ID, cfg.TaskID, cfg.Backend),
		log:       log,
	}, nil
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Result returns the progress record of the job.
func (j *Job) Result() *domain.Result { return j.result }

// HasCaching reports whether the backend supports caching.
func (j *Job) HasCaching() bool { return j.desc.HasCaching() }

// HasResuming reports whether the backend can be resumed after a failure.
func (j *Job) HasResuming() bool { return j.desc.HasResuming() }

// Run executes the backend once, pushing every item to the output queue.
//
// Without resume the progress record starts over. With resume, the latest
// timestamp and offset seen so far are passed to the backend as from_date
// and offset so it continues from there. An item is pushed before it is
// recorded: if the run dies in between, a resumed run may push it again.
func (j *Job) Run(ctx context.Context, args domain.Args, resume, fetchFromCache bool) error {
	args = args.Clone()

	if !resume {
		j.result = domain.NewResult(j.id, j.taskID, j.backend)
	} else {
		if j.result.MaxDate != nil {
			args[domain.ArgFromDate] = unixToTime(*j.result.MaxDate)
		}
		if j.result.Offset != nil {
			args[domain.ArgOffset] = *j.result.Offset
		}
		j.result.NResumed++
	}

	if j.cache != nil {
		args[domain.ArgCache] = j.cache
	} else {
		delete(args, domain.ArgCache)
	}

	for item, err := range j.items(ctx, args, fetchFromCache) {
		if err != nil {
			return err
		}
		if err := j.queue.Push(ctx, j.queueName, item); err != nil {
			return fmt.Errorf("failed to push item %s to %s: %w", item.UUID(), j.queueName, err)
		}
		j.result.Track(item)
	}
	return nil
}

// InitializeCache opens the job cache under path. With backup set, the
// current cache contents are snapshotted so a failed run can roll back.
func (j *Job) InitializeCache(path string, backup bool) error {
	if path == "" {
		return fmt.Errorf("%w: cache path requires a value", ErrInvalidArgument)
	}
	if j.openCache == nil {
		return fmt.Errorf("%w: no cache opener configured", ErrInvalidOperation)
	}

	cache, err := j.openCache(path)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	j.cache = cache

	if backup {
		if err := cache.Backup(); err != nil {
			return fmt.Errorf("failed to back up cache: %w", err)
		}
		j.log.Debug("Cache backup completed", "job", j.id, "path", path)
	}

	j.log.Debug("Cache initialized", "job", j.id, "path", path)
	return nil
}

// RecoverCache restores the last cache snapshot. It does nothing when the
// job has no cache.
func (j *Job) RecoverCache() error {
	if j.cache == nil {
		return nil
	}
	if err := j.cache.Recover(); err != nil {
		return fmt.Errorf("failed to recover cache: %w", err)
	}
	j.log.Debug("Cache recovered", "job", j.id, "path", j.cache.Path())
	return nil
}

// DisableCache releases the cache handle; later runs execute without cache.
func (j *Job) DisableCache() error {
	if j.cache == nil {
		return nil
	}
	err := j.cache.Close()
	j.cache = nil
	return err
}

// items builds the production pipeline: bind arguments, construct the
// backend, and tag what it yields.
func (j *Job) items(ctx context.Context, args domain.Args, fetchFromCache bool) iter.Seq2[domain.Item, error] {
	return withMetadata(j.id, j.version, j.produce(ctx, args, fetchFromCache))
}

func (j *Job) produce(ctx context.Context, args domain.Args, fetchFromCache bool) iter.Seq2[domain.Item, error] {
	return func(yield func(domain.Item, error) bool) {
		sig := j.desc.Signature()

		initArgs, err := backend.Bind(sig.Init, args)
		if err != nil {
			yield(nil, err)
			return
		}
		b, err := j.desc.New(initArgs)
		if err != nil {
			yield(nil, err)
			return
		}

		fetch, params := b.Fetch, sig.Fetch
		if fetchFromCache {
			fetch, params = b.FetchFromCache, sig.FetchFromCache
		}

		fetchArgs, err := backend.Bind(params, args)
		if err != nil {
			yield(nil, err)
			return
		}

		for item, err := range fetch(ctx, fetchArgs) {
			if !yield(item, err) || err != nil {
				return
			}
		}
	}
}

// withMetadata tags every item with the job id and the running version.
func withMetadata(jobID, version string, seq iter.Seq2[domain.Item, error]) iter.Seq2[domain.Item, error] {
	return func(yield func(domain.Item, error) bool) {
		for item, err := range seq {
			if err == nil {
				item = maps.Clone(item)
				if item == nil {
					item = domain.Item{}
				}
				item[domain.ItemKeyVersion] = version
				item[domain.ItemKeyJobID] = jobID
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

func unixToTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
