package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"docarchive/internal/logging"
)

var (
	// ErrInFlight is returned when the document is already queued or running.
	ErrInFlight = errors.New("document already in flight")
	// ErrQueueFull is returned when no queue slot is free. The document stays
	// PENDING and is picked up by the next recovery pass.
	ErrQueueFull = errors.New("ingest queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Job asks for one pipeline run.
type Job struct {
	DocumentID    int64
	FilePath      string
	MimeType      string
	AllowTerminal bool
}

// ProcessFunc runs one job to completion.
type ProcessFunc func(ctx context.Context, job Job) Result

// Dispatcher runs jobs on a fixed pool of workers. A document id is in
// flight from Submit until its run returns; a second Submit for it is
// refused.
type Dispatcher struct {
	process ProcessFunc
	logger  *slog.Logger
	jobs    chan Job
	wg      sync.WaitGroup
	pending sync.WaitGroup

	mu       sync.Mutex
	inflight map[int64]struct{}
	closed   bool
	onDone   func(Result)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCompletionHook registers fn to observe every finished run.
func WithCompletionHook(fn func(Result)) DispatcherOption {
	return func(d *Dispatcher) { d.onDone = fn }
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize
// slots.
func NewDispatcher(workers, queueSize int, process ProcessFunc, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	d := &Dispatcher{
		process:  process,
		logger:   logging.NewComponentLogger(logger, "dispatcher"),
		jobs:     make(chan Job, queueSize),
		inflight: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker(i + 1)
	}
	return d
}

// Submit queues job without waiting for it to run.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, busy := d.inflight[job.DocumentID]; busy {
		return ErrInFlight
	}
	select {
	case d.jobs <- job:
	default:
		return ErrQueueFull
	}
	d.inflight[job.DocumentID] = struct{}{}
	d.pending.Add(1)
	return nil
}

// Run executes job on the caller's goroutine while honouring the in-flight
// set.
func (d *Dispatcher) Run(ctx context.Context, job Job) (Result, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Result{}, ErrClosed
	}
	if _, busy := d.inflight[job.DocumentID]; busy {
		d.mu.Unlock()
		return Result{}, ErrInFlight
	}
	d.inflight[job.DocumentID] = struct{}{}
	d.pending.Add(1)
	d.mu.Unlock()
	return d.execute(ctx, job), nil
}

// InFlight reports whether documentID is queued or running.
func (d *Dispatcher) InFlight(documentID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[documentID]
	return ok
}

// Wait blocks until every submitted job has finished.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops accepting jobs, lets queued jobs drain and waits for the
// workers or ctx, whichever comes first. Running jobs are never cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown interrupted; jobs still running",
			logging.String(logging.FieldEventType, "dispatcher_shutdown_interrupted"),
			logging.String(logging.FieldImpact, "unfinished documents stay PROCESSING until recovered"),
			logging.String(logging.FieldErrorHint, "restart with recover_on_start enabled"),
		)
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.jobs {
		d.logger.Debug("job started", logging.Int("worker", id), logging.Int64(logging.FieldDocumentID, job.DocumentID))
		d.execute(context.Background(), job)
	}
}

func (d *Dispatcher) execute(ctx context.Context, job Job) Result {
	defer func() {
		d.mu.Lock()
		delete(d.inflight, job.DocumentID)
		d.mu.Unlock()
		d.pending.Done()
	}()
	res := d.process(ctx, job)
	if d.onDone != nil {
		d.onDone(res)
	}
	return res
}
