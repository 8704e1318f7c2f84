// Package jsonl is a backend reading items from a newline-delimited JSON
// file. It supports resuming by date or offset and caching of raw lines.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/vietddude/harvester/internal/core/backend"
	"github.com/vietddude/harvester/internal/core/domain"
)

// Name is the registry name of the backend.
const Name = "jsonl"

const (
	ArgPath = "path"

	maxLineSize = 4 * 1024 * 1024
)

func init() {
	backend.MustRegister(Descriptor{})
}

// RawCache stores and replays the raw lines read by the backend.
type RawCache interface {
	Clear(ctx context.Context) error
	Store(ctx context.Context, data ...[]byte) error
	Retrieve(ctx context.Context) iter.Seq2[[]byte, error]
}

// Descriptor describes the jsonl backend.
type Descriptor struct{}

func (Descriptor) Name() string      { return Name }
func (Descriptor) HasCaching() bool  { return true }
func (Descriptor) HasResuming() bool { return true }

func (Descriptor) Signature() backend.Signature {
	return backend.Signature{
		Init: []backend.Param{
			backend.Required(ArgPath),
			backend.Optional(domain.ArgCache),
		},
		Fetch: []backend.Param{
			backend.Optional(domain.ArgFromDate),
			backend.Optional(domain.ArgOffset),
		},
	}
}

func (Descriptor) New(args domain.Args) (backend.Backend, error) {
	path, ok := args[ArgPath].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", backend.ErrInvalidArguments, ArgPath)
	}

	b := &Backend{path: path}
	if c, ok := args[domain.ArgCache]; ok {
		rc, ok := c.(RawCache)
		if !ok {
			return nil, fmt.Errorf("%w: cache of type %T cannot store raw data", backend.ErrInvalidArguments, c)
		}
		b.cache = rc
	}
	return b, nil
}

// Backend reads one file.
type Backend struct {
	path  string
	cache RawCache
}

// Fetch yields the items of the file, skipping those updated before
// from_date or at or below offset. from_date is inclusive since several items
// may share one timestamp; offset is exclusive since it names the last item
// already recorded.
//
// Every yielded line is stored in the cache, if any. A fetch with neither
// from_date nor offset starts over and clears the cache first.
func (b *Backend) Fetch(ctx context.Context, args domain.Args) iter.Seq2[domain.Item, error] {
	return func(yield func(domain.Item, error) bool) {
		f, err := filterFrom(args)
		if err != nil {
			yield(nil, err)
			return
		}

		file, err := os.Open(b.path)
		if err != nil {
			yield(nil, fmt.Errorf("open %s: %w", b.path, err))
			return
		}
		defer file.Close()

		if b.cache != nil && !f.hasFrom && !f.hasOffset {
			if err := b.cache.Clear(ctx); err != nil {
				yield(nil, fmt.Errorf("reset cache: %w", err))
				return
			}
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		line := 0
		for scanner.Scan() {
			line++
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			item, err := decode(raw)
			if err != nil {
				yield(nil, fmt.Errorf("%s:%d: %w", b.path, line, err))
				return
			}
			if f.skip(item) {
				continue
			}

			if b.cache != nil {
				if err := b.cache.Store(ctx, bytes.Clone(raw)); err != nil {
					yield(nil, fmt.Errorf("cache line %d: %w", line, err))
					return
				}
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("read %s: %w", b.path, err))
		}
	}
}

// FetchFromCache replays the lines stored by earlier fetches.
func (b *Backend) FetchFromCache(ctx context.Context, args domain.Args) iter.Seq2[domain.Item, error] {
	return func(yield func(domain.Item, error) bool) {
		if b.cache == nil {
			yield(nil, fmt.Errorf("%w: fetching from cache requires a cache", backend.ErrInvalidArguments))
			return
		}
		for raw, err := range b.cache.Retrieve(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			item, err := decode(raw)
			if err != nil {
				yield(nil, fmt.Errorf("cached entry: %w", err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func decode(raw []byte) (domain.Item, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var item domain.Item
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}

type filter struct {
	from      float64
	hasFrom   bool
	offset    int64
	hasOffset bool
}

func filterFrom(args domain.Args) (filter, error) {
	var f filter
	if v, ok := args[domain.ArgFromDate]; ok {
		var t time.Time
		switch d := v.(type) {
		case time.Time:
			t = d
		case string:
			parsed, err := time.Parse(time.RFC3339, d)
			if err != nil {
				return f, fmt.Errorf("%w: %s: %v", backend.ErrInvalidArguments, domain.ArgFromDate, err)
			}
			t = parsed
		default:
			return f, fmt.Errorf("%w: %s must be a time, got %T", backend.ErrInvalidArguments, domain.ArgFromDate, v)
		}
		f.from = float64(t.UnixNano()) / 1e9
		f.hasFrom = true
	}
	if v, ok := args[domain.ArgOffset]; ok {
		switch n := v.(type) {
		case int64:
			f.offset = n
		case int:
			f.offset = int64(n)
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return f, fmt.Errorf("%w: %s: %v", backend.ErrInvalidArguments, domain.ArgOffset, err)
			}
			f.offset = i
		default:
			return f, fmt.Errorf("%w: %s must be an integer, got %T", backend.ErrInvalidArguments, domain.ArgOffset, v)
		}
		f.hasOffset = true
	}
	return f, nil
}

func (f filter) skip(item domain.Item) bool {
	if f.hasFrom {
		if ts, ok := item.UpdatedOn(); ok && ts < f.from {
			return true
		}
	}
	if f.hasOffset {
		if off, ok := item.Offset(); ok && off <= f.offset {
			return true
		}
	}
	return false
}
