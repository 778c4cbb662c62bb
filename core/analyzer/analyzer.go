// Package analyzer computes content hashes and media metadata for audio
// files on a small fixed worker pool, keeping CPU-bound work off the
// orchestrating goroutine. When the pool is unavailable the same work runs
// synchronously on the caller; the contract is identical either way.
package analyzer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"sonexa/logger"
)

// Kind selects which fields of Result a task computes.
type Kind string

const (
	KindHash     Kind = "hash"
	KindMetadata Kind = "metadata"
	KindFull     Kind = "full"
)

// ErrAnalyzeTimeout indicates no worker response arrived within the bound.
// The task is abandoned; a late response is dropped.
var ErrAnalyzeTimeout = errors.New("analyze task timed out")

// Result carries the derived metadata for one file.
type Result struct {
	ContentHash     string
	DurationSeconds float64
	SizeBytes       int64
}

// taskRequest travels from the caller to a worker.
type taskRequest struct {
	id   uint64
	kind Kind
	path string
}

// taskResponse travels back and is correlated by task id.
type taskResponse struct {
	id     uint64
	result *Result
	err    error
}

// DefaultTimeout bounds how long a caller waits for a worker response.
const DefaultTimeout = 60 * time.Second

// Pool is the hashing/metadata worker pool.
type Pool struct {
	probe   *durationProbe
	workers int
	timeout time.Duration

	tasks   chan taskRequest
	results chan taskResponse
	stop    chan struct{}

	mu        sync.Mutex
	pending   map[uint64]chan taskResponse
	nextID    uint64
	available bool
	started   bool
}

// NewPool creates a pool of workers hashing with SHA-1 and probing duration
// via ffprobe, falling back to afinfo. The pool does not run until Start.
func NewPool(workers int, ffprobePath, afinfoPath string) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		probe:   &durationProbe{ffprobePath: ffprobePath, afinfoPath: afinfoPath},
		workers: workers,
		timeout: DefaultTimeout,
		tasks:   make(chan taskRequest),
		results: make(chan taskResponse),
		pending: make(map[uint64]chan taskResponse),
	}
}

// Start launches the workers and the response dispatcher. A stopped pool can
// be started again; each run gets a fresh stop channel.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.available = true
	p.stop = make(chan struct{})

	stop := p.stop
	for i := 0; i < p.workers; i++ {
		go p.worker(i, stop)
	}
	go p.dispatch(stop)

	logger.Info("analyzer pool started", logger.Int("workers", p.workers))
}

// Stop shuts the pool down. Pending tasks are rejected; subsequent Analyze
// calls run synchronously.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.available = false
	close(p.stop)
	p.mu.Unlock()

	p.rejectPending(errors.New("analyzer pool stopped"))
}

// Available reports whether tasks are currently offloaded to workers.
func (p *Pool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Analyze computes the requested metadata for path. Work is offloaded to the
// pool when it is running, otherwise performed inline; callers cannot tell
// the difference from the results.
func (p *Pool) Analyze(ctx context.Context, path string, kind Kind) (*Result, error) {
	if !p.Available() {
		return p.analyzeSync(ctx, path, kind)
	}

	reply := make(chan taskResponse, 1)

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.pending[id] = reply
	stop := p.stop
	p.mu.Unlock()

	select {
	case p.tasks <- taskRequest{id: id, kind: kind, path: path}:
	case <-stop:
		p.evict(id)
		return p.analyzeSync(ctx, path, kind)
	case <-ctx.Done():
		p.evict(id)
		return nil, ctx.Err()
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		return resp.result, resp.err
	case <-timer.C:
		// Abandon the task: evicting the id means any late worker
		// response is dropped by the dispatcher.
		p.evict(id)
		return nil, fmt.Errorf("%w: %s", ErrAnalyzeTimeout, path)
	case <-ctx.Done():
		p.evict(id)
		return nil, ctx.Err()
	}
}

// worker executes tasks until the pool stops. A panic inside a task marks
// the pool unavailable and rejects everything in flight; the process keeps
// running on the synchronous path.
func (p *Pool) worker(n int, stop chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("analyzer worker crashed", logger.Int("worker", n), logger.Any("panic", r))
			p.mu.Lock()
			p.available = false
			p.mu.Unlock()
			p.rejectPending(fmt.Errorf("analyzer worker crashed: %v", r))
		}
	}()

	for {
		select {
		case req := <-p.tasks:
			result, err := p.execute(req.kind, req.path)
			select {
			case p.results <- taskResponse{id: req.id, result: result, err: err}:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}

// dispatch routes responses back to waiting callers by task id. Responses
// whose id has been evicted (timeout, cancellation) are dropped.
func (p *Pool) dispatch(stop chan struct{}) {
	for {
		select {
		case resp := <-p.results:
			p.mu.Lock()
			reply, ok := p.pending[resp.id]
			if ok {
				delete(p.pending, resp.id)
			}
			p.mu.Unlock()
			if ok {
				reply <- resp
			}
		case <-stop:
			return
		}
	}
}

func (p *Pool) evict(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *Pool) rejectPending(err error) {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[uint64]chan taskResponse)
	p.mu.Unlock()

	for id, reply := range pending {
		reply <- taskResponse{id: id, err: err}
	}
}

// analyzeSync is the fallback path, running the identical work inline.
func (p *Pool) analyzeSync(ctx context.Context, path string, kind Kind) (*Result, error) {
	return p.executeCtx(ctx, kind, path)
}

func (p *Pool) execute(kind Kind, path string) (*Result, error) {
	return p.executeCtx(context.Background(), kind, path)
}

func (p *Pool) executeCtx(ctx context.Context, kind Kind, path string) (*Result, error) {
	result := &Result{}

	size, err := fileSize(path)
	if err != nil {
		return nil, err
	}
	result.SizeBytes = size

	if kind == KindHash || kind == KindFull {
		hash, err := hashFile(path)
		if err != nil {
			return nil, err
		}
		result.ContentHash = hash
	}

	if kind == KindMetadata || kind == KindFull {
		// Best effort: a file with no working probe still imports with
		// duration zero.
		result.DurationSeconds = p.probe.duration(ctx, path)
	}

	return result, nil
}

// hashFile streams the file once through SHA-1. The file is never loaded
// into memory whole.
func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer file.Close()

	h := sha1.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func fileSize(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return stat.Size(), nil
}
