package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docarchive/internal/ingest"
	"docarchive/internal/logging"
)

// blockingProcess holds every job until release is closed.
type blockingProcess struct {
	started chan int64
	release chan struct{}
}

func newBlockingProcess() *blockingProcess {
	return &blockingProcess{started: make(chan int64, 16), release: make(chan struct{})}
}

func (b *blockingProcess) run(_ context.Context, job ingest.Job) ingest.Result {
	b.started <- job.DocumentID
	<-b.release
	return ingest.Result{DocumentID: job.DocumentID, Outcome: ingest.OutcomeCompleted}
}

func waitStarted(t *testing.T, b *blockingProcess) int64 {
	t.Helper()
	select {
	case id := <-b.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
		return 0
	}
}

func TestDispatcherRefusesDocumentInFlight(t *testing.T) {
	proc := newBlockingProcess()
	d := ingest.NewDispatcher(2, 4, proc.run, logging.NewNop())
	defer d.Close(context.Background())

	if err := d.Submit(ingest.Job{DocumentID: 7}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, proc)
	if !d.InFlight(7) {
		t.Fatal("expected document 7 in flight")
	}
	if err := d.Submit(ingest.Job{DocumentID: 7}); !errors.Is(err, ingest.ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	if _, err := d.Run(context.Background(), ingest.Job{DocumentID: 7}); !errors.Is(err, ingest.ErrInFlight) {
		t.Fatalf("expected ErrInFlight from Run, got %v", err)
	}

	close(proc.release)
	d.Wait()
	if d.InFlight(7) {
		t.Fatal("document 7 still in flight after completion")
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	proc := newBlockingProcess()
	d := ingest.NewDispatcher(1, 1, proc.run, logging.NewNop())
	defer d.Close(context.Background())

	if err := d.Submit(ingest.Job{DocumentID: 1}); err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	waitStarted(t, proc)
	if err := d.Submit(ingest.Job{DocumentID: 2}); err != nil {
		t.Fatalf("Submit 2: %v", err)
	}
	if err := d.Submit(ingest.Job{DocumentID: 3}); !errors.Is(err, ingest.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if d.InFlight(3) {
		t.Fatal("rejected job must not be in flight")
	}

	close(proc.release)
	d.Wait()
}

func TestDispatcherCompletionHook(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64]ingest.Outcome{}
	hook := ingest.WithCompletionHook(func(res ingest.Result) {
		mu.Lock()
		seen[res.DocumentID] = res.Outcome
		mu.Unlock()
	})
	process := func(_ context.Context, job ingest.Job) ingest.Result {
		return ingest.Result{DocumentID: job.DocumentID, Outcome: ingest.OutcomeCompleted}
	}
	d := ingest.NewDispatcher(3, 8, process, logging.NewNop(), hook)
	for id := int64(1); id <= 5; id++ {
		if err := d.Submit(ingest.Job{DocumentID: id}); err != nil {
			t.Fatalf("Submit %d: %v", id, err)
		}
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("hook saw %d results, want 5", len(seen))
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	process := func(_ context.Context, job ingest.Job) ingest.Result {
		return ingest.Result{DocumentID: job.DocumentID}
	}
	d := ingest.NewDispatcher(1, 1, process, logging.NewNop())
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Submit(ingest.Job{DocumentID: 1}); !errors.Is(err, ingest.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := d.Run(context.Background(), ingest.Job{DocumentID: 1}); !errors.Is(err, ingest.ErrClosed) {
		t.Fatalf("expected ErrClosed from Run, got %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDispatcherCloseTimesOut(t *testing.T) {
	proc := newBlockingProcess()
	d := ingest.NewDispatcher(1, 1, proc.run, logging.NewNop())
	if err := d.Submit(ingest.Job{DocumentID: 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, proc)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	close(proc.release)
	d.Wait()
}
