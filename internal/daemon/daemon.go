package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/ingest"
	"docarchive/internal/logging"
)

// LockFileName is the single-instance lock inside the log directory.
const LockFileName = "docarchived.lock"

const shutdownTimeout = 2 * time.Minute

// Daemon owns the ingestion service lifecycle and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *documents.Store
	service *ingest.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	inboxWG sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	DatabasePath string
	InboxDir     string
	Counts       []documents.StatusCount
}

// New constructs a daemon around an already wired ingestion service.
func New(cfg *config.Config, store *documents.Store, service *ingest.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || service == nil {
		return nil, errors.New("daemon requires config, store, and ingest service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		service:  service,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, requeues unfinished documents and starts
// the inbox watch when one is configured.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docarchive daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.cfg.Ingest.RecoverOnStart {
		if _, err := d.service.RecoverPending(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "startup recovery failed", "ingest_recovery_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "documents left PENDING or PROCESSING are not retried"),
				logging.String(logging.FieldErrorHint, "run docarchive reprocess once the database is reachable"),
			)
		}
	}

	if dir := strings.TrimSpace(d.cfg.Paths.InboxDir); dir != "" {
		if err := d.startInbox(runCtx, dir); err != nil {
			cancel()
			d.cancel = nil
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("docarchive daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("inbox", d.cfg.Paths.InboxDir),
	)
	return nil
}

func (d *Daemon) startInbox(ctx context.Context, dir string) error {
	owner := d.cfg.Ingest.DefaultOwnerID
	upload := func(ctx context.Context, path string) error {
		// An upload that has started finishes even when shutdown begins.
		_, err := d.service.Upload(context.WithoutCancel(ctx), owner, path, filepath.Base(path), "")
		return err
	}
	watcher := newInboxWatcher(dir, time.Duration(d.cfg.Ingest.InboxDebounceMillis)*time.Millisecond, upload, d.logger)
	ready := make(chan struct{})
	errs := make(chan error, 1)
	d.inboxWG.Add(1)
	go func() {
		defer d.inboxWG.Done()
		errs <- watcher.run(ctx, ready)
	}()
	select {
	case <-ready:
		return nil
	case err := <-errs:
		return err
	}
}

// Stop stops the inbox watch, drains queued documents and releases the lock.
// The ingest service is closed as well, so a stopped daemon cannot be
// started again.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.inboxWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.service.Close(ctx); err != nil {
		d.logger.Warn("ingest workers did not drain", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("docarchive daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		DatabasePath: d.cfg.DatabasePath(),
		InboxDir:     d.cfg.Paths.InboxDir,
	}
	counts, err := d.store.StatusCounts(ctx, 0)
	if err != nil {
		d.logger.Debug("status counts unavailable", logging.Error(err))
	} else {
		status.Counts = counts
	}
	return status
}

// LockHeld reports whether another process holds the daemon lock for cfg.
func LockHeld(cfg *config.Config) (bool, error) {
	path := filepath.Join(cfg.Paths.LogDir, LockFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
