package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/harvester/internal/core/backend"
	"github.com/vietddude/harvester/internal/core/domain"
)

func newTestExecutor(t *testing.T, d *fakeDescriptor, q *fakeQueue, c *fakeCache) (*Executor, *[]Transition) {
	t.Helper()
	reg := backend.NewRegistry()
	if err := reg.Register(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	var transitions []Transition
	e := NewExecutor(ExecutorConfig{
		Registry: reg,
		Queue:    q,
		Version:  "1.2.3",
		OpenCache: func(path string) (Cache, error) {
			c.path = path
			return c, nil
		},
		OnTransition: func(tr Transition) { transitions = append(transitions, tr) },
	})
	return e, &transitions
}

func request(backendName string) Request {
	return Request{
		JobID:   "job-1",
		TaskID:  "task-1",
		Backend: backendName,
		Args:    domain.Args{"uri": "http://example.com"},
		Queue:   "items",
	}
}

// =============================================================================
// Retry Tests
// =============================================================================

func TestExecute_Success(t *testing.T) {
	d := &fakeDescriptor{
		name: "x", caching: true, resuming: true,
		attempts: []attempt{{items: items([]string{"1", "2", "3", "4", "5"}, []float64{1, 2, 3, 4, 5})}},
	}
	e, transitions := newTestExecutor(t, d, &fakeQueue{}, &fakeCache{})

	result, err := e.Execute(context.Background(), request("x"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.NItems != 5 || result.LastUUID != "5" || *result.MaxDate != 5 {
		t.Errorf("unexpected result: %+v", result)
	}
	if d.runs != 1 {
		t.Errorf("expected 1 run, got %d", d.runs)
	}

	got := *transitions
	if len(got) != 2 || got[0].To != StateRunning || got[1].To != StateSuccess {
		t.Errorf("unexpected transitions: %+v", got)
	}
}

func TestExecute_ResumesAfterFailure(t *testing.T) {
	boom := errors.New("timeout")
	d := &fakeDescriptor{
		name: "x", resuming: true,
		attempts: []attempt{
			{items: items([]string{"1", "2"}, []float64{100, 200}), err: boom},
			{items: items([]string{"3", "4", "5"}, []float64{300, 400, 500})},
		},
	}
	q := &fakeQueue{}
	e, transitions := newTestExecutor(t, d, q, &fakeCache{})

	result, err := e.Execute(context.Background(), request("x"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if d.runs != 2 {
		t.Fatalf("expected 2 runs, got %d", d.runs)
	}
	from, ok := d.fetchArgs[1][domain.ArgFromDate].(time.Time)
	if !ok || from.Unix() != 200 {
		t.Errorf("expected resumed run from 200, got %v", d.fetchArgs[1][domain.ArgFromDate])
	}
	if result.NItems != 5 || result.NResumed != 1 {
		t.Errorf("expected 5 items and 1 resume, got %+v", result)
	}
	if len(q.pushed) != 5 {
		t.Errorf("expected 5 pushed items, got %d", len(q.pushed))
	}

	want := []State{StateRunning, StateRetrying, StateRunning, StateSuccess}
	got := *transitions
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %+v", len(want), got)
	}
	for i, s := range want {
		if got[i].To != s {
			t.Errorf("transition %d: expected %s, got %s", i, s, got[i].To)
		}
	}
}

func TestExecute_RetryBound(t *testing.T) {
	boom := errors.New("connection refused")
	d := &fakeDescriptor{name: "x", resuming: true, attempts: []attempt{{err: boom}}}
	e, transitions := newTestExecutor(t, d, &fakeQueue{}, &fakeCache{})

	req := request("x")
	req.MaxRetries = 3
	result, err := e.Execute(context.Background(), req)

	if err != boom {
		t.Fatalf("expected the original error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}
	if d.runs != 3 {
		t.Errorf("expected exactly 3 runs, got %d", d.runs)
	}

	got := *transitions
	if last := got[len(got)-1]; last.To != StateAborted || last.Err != boom {
		t.Errorf("expected abort with original error, got %+v", last)
	}
}

func TestExecute_DefaultMaxRetries(t *testing.T) {
	d := &fakeDescriptor{name: "x", resuming: true, attempts: []attempt{{err: errors.New("boom")}}}
	e, _ := newTestExecutor(t, d, &fakeQueue{}, &fakeCache{})

	if _, err := e.Execute(context.Background(), request("x")); err == nil {
		t.Fatal("expected error")
	}
	if d.runs != DefaultMaxRetries {
		t.Errorf("expected %d runs, got %d", DefaultMaxRetries, d.runs)
	}
}

func TestExecute_NoResumeSupport(t *testing.T) {
	boom := errors.New("boom")
	d := &fakeDescriptor{name: "x", attempts: []attempt{{err: boom}}}
	e, _ := newTestExecutor(t, d, &fakeQueue{}, &fakeCache{})

	req := request("x")
	req.MaxRetries = 5
	result, err := e.Execute(context.Background(), req)

	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if result != nil {
		t.Error("expected no result")
	}
	if d.runs != 1 {
		t.Errorf("expected exactly 1 run, got %d", d.runs)
	}
}

func TestExecute_NonRetryableError(t *testing.T) {
	d := &fakeDescriptor{
		name: "x", resuming: true,
		sig: &backend.Signature{Fetch: []backend.Param{backend.Required("category")}},
	}
	e, _ := newTestExecutor(t, d, &fakeQueue{}, &fakeCache{})

	_, err := e.Execute(context.Background(), request("x"))
	if !errors.Is(err, backend.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
	if d.runs != 1 {
		t.Errorf("binding failures must never be retried, got %d runs", d.runs)
	}
}

func TestExecute_UnknownBackend(t *testing.T) {
	d := &fakeDescriptor{name: "x"}
	e, _ := newTestExecutor(t, d, &fakeQueue{}, &fakeCache{})

	if _, err := e.Execute(context.Background(), request("nope")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// =============================================================================
// Cache Tests
// =============================================================================

func TestExecute_CacheUnsupported(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Request)
	}{
		{"cache path", func(r *Request) { r.CachePath = "/tmp/cache" }},
		{"fetch from cache", func(r *Request) { r.FetchFromCache = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDescriptor{name: "x", resuming: true}
			c := &fakeCache{}
			e, _ := newTestExecutor(t, d, &fakeQueue{}, c)

			req := request("x")
			tt.mod(&req)
			_, err := e.Execute(context.Background(), req)

			if !errors.Is(err, ErrInvalidOperation) {
				t.Fatalf("expected ErrInvalidOperation, got %v", err)
			}
			if d.runs != 0 {
				t.Errorf("no run may happen, got %d", d.runs)
			}
			if c.backups != 0 {
				t.Error("cache must not be touched")
			}
		})
	}
}

func TestExecute_CacheRollback(t *testing.T) {
	boom := errors.New("timeout")
	d := &fakeDescriptor{
		name: "x", caching: true, resuming: true,
		attempts: []attempt{
			{items: items([]string{"1"}, []float64{1}), err: boom},
			{items: items([]string{"2"}, []float64{2})},
		},
	}
	c := &fakeCache{}
	e, _ := newTestExecutor(t, d, &fakeQueue{}, c)

	req := request("x")
	req.CachePath = "/tmp/cache"
	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if c.path != "/tmp/cache" {
		t.Errorf("cache opened at %q", c.path)
	}
	if c.backups != 1 {
		t.Errorf("expected 1 backup at initialization, got %d", c.backups)
	}
	if c.recovers != 1 {
		t.Errorf("expected 1 recover after the failure, got %d", c.recovers)
	}
	if d.initArgs[0][domain.ArgCache] == nil {
		t.Error("first run must get the cache")
	}
	if _, ok := d.initArgs[1][domain.ArgCache]; ok {
		t.Error("cache must be disabled after the rollback")
	}
	if c.closes != 1 {
		t.Errorf("expected cache closed once, got %d", c.closes)
	}
}

func TestExecute_FetchFromCache(t *testing.T) {
	boom := errors.New("corrupt entry")
	d := &fakeDescriptor{
		name: "x", caching: true, resuming: true,
		attempts: []attempt{{err: boom}, {}},
	}
	c := &fakeCache{}
	e, _ := newTestExecutor(t, d, &fakeQueue{}, c)

	req := request("x")
	req.CachePath = "/tmp/cache"
	req.FetchFromCache = true
	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if c.backups != 0 {
		t.Errorf("replaying a cache must not back it up, got %d", c.backups)
	}
	if c.recovers != 0 {
		t.Errorf("replaying a cache must not recover it, got %d", c.recovers)
	}
	for i, fromCache := range d.fromCache {
		if !fromCache {
			t.Errorf("run %d did not read from cache", i)
		}
	}
	if d.initArgs[1][domain.ArgCache] == nil {
		t.Error("read-only cache stays enabled across retries")
	}
}

func TestExecute_RecoverFailureKeepsOriginalError(t *testing.T) {
	boom := errors.New("boom")
	d := &fakeDescriptor{name: "x", caching: true, attempts: []attempt{{err: boom}}}
	c := &fakeCache{recoverErr: errors.New("disk full")}
	e, _ := newTestExecutor(t, d, &fakeQueue{}, c)

	req := request("x")
	req.CachePath = "/tmp/cache"
	_, err := e.Execute(context.Background(), req)

	if err != boom {
		t.Fatalf("expected original error, got %v", err)
	}
	if c.recovers != 1 {
		t.Errorf("expected 1 recover attempt, got %d", c.recovers)
	}
}

// =============================================================================
// Policy Tests
// =============================================================================

func TestExponentialBackoff_Delay(t *testing.T) {
	b := ExponentialBackoff{InitialDelay: time.Second, MaxDelay: 5 * time.Second}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.failures); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}

	if (NoDelay{}).Delay(3) != 0 {
		t.Error("NoDelay must not wait")
	}
}

func TestExecute_CancelledDuringDelay(t *testing.T) {
	d := &fakeDescriptor{name: "x", resuming: true, attempts: []attempt{{err: errors.New("boom")}}}
	reg := backend.NewRegistry()
	_ = reg.Register(d)

	e := NewExecutor(ExecutorConfig{
		Registry: reg,
		Queue:    &fakeQueue{},
		Policy:   ExponentialBackoff{InitialDelay: time.Hour},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Execute(ctx, request("x"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if d.runs != 1 {
		t.Errorf("expected 1 run before cancellation, got %d", d.runs)
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureCategory
	}{
		{"transient", errors.New("timeout"), CategoryTransient},
		{"binding", backend.ErrInvalidArguments, CategoryPermanent},
		{"cancelled", context.Canceled, CategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.want {
				t.Errorf("DefaultClassifier(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
