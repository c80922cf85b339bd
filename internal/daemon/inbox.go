package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"docarchive/internal/fileutil"
	"docarchive/internal/logging"
)

// failedDirName holds inbox files whose upload failed. fsnotify watches are
// not recursive, so files parked there are not picked up again.
const failedDirName = "failed"

var inboxExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".tif":  {},
	".tiff": {},
	".heic": {},
	".heif": {},
}

// UploadFunc hands one settled inbox file to the pipeline. The file may be
// removed once it returns nil.
type UploadFunc func(ctx context.Context, path string) error

type pendingFile struct {
	timer *time.Timer
}

// inboxWatcher uploads files dropped into a directory once they have stopped
// changing for the debounce interval.
type inboxWatcher struct {
	dir      string
	debounce time.Duration
	upload   UploadFunc
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingFile
	stopped bool
	wg      sync.WaitGroup
}

func newInboxWatcher(dir string, debounce time.Duration, upload UploadFunc, logger *slog.Logger) *inboxWatcher {
	if debounce <= 0 {
		debounce = 750 * time.Millisecond
	}
	return &inboxWatcher{
		dir:      dir,
		debounce: debounce,
		upload:   upload,
		logger:   logging.NewComponentLogger(logger, "inbox"),
		pending:  make(map[string]*pendingFile),
	}
}

// run watches until ctx is done, then waits for uploads already started.
// ready, when non-nil, is closed once the watch is registered.
func (w *inboxWatcher) run(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch inbox %s: %w", w.dir, err)
	}
	if ready != nil {
		close(ready)
	}
	w.logger.Info("inbox watch started",
		logging.String("dir", w.dir),
		logging.Duration("debounce", w.debounce),
	)
	w.scanExisting(ctx)
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if accepted(event.Name) {
					w.schedule(ctx, event.Name)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some dropped files may be missed until the next restart"),
			)
		}
	}
}

func (w *inboxWatcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Debug("inbox scan failed", logging.Error(err))
		return
	}
	for _, entry := range entries {
		path := filepath.Join(w.dir, entry.Name())
		if entry.Type().IsRegular() && accepted(path) {
			w.schedule(ctx, path)
		}
	}
}

// schedule (re)starts the quiet-period timer for path.
func (w *inboxWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.debounce)
		return
	}
	p := &pendingFile{}
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.fire(ctx, path, p)
	})
	w.pending[path] = p
}

func (w *inboxWatcher) fire(ctx context.Context, path string, p *pendingFile) {
	w.mu.Lock()
	if w.pending[path] != p {
		// Superseded by a newer event or cancelled by stop.
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()
	w.ingest(ctx, path)
}

func (w *inboxWatcher) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return
	}
	if err := w.upload(ctx, path); err != nil {
		target := filepath.Join(w.dir, failedDirName, filepath.Base(path))
		moveErr := fileutil.MoveFile(path, target)
		logging.WarnWithContext(w.logger, "inbox upload failed", "inbox_upload_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.Bool("parked", moveErr == nil),
			logging.String(logging.FieldImpact, "file was not archived"),
			logging.String(logging.FieldErrorHint, "fix the cause and move the file back from "+failedDirName+"/"),
		)
		return
	}
	if err := os.Remove(path); err != nil {
		w.logger.Debug("inbox file not removed after upload", logging.String("path", path), logging.Error(err))
	}
	w.logger.Info("inbox file uploaded",
		logging.String(logging.FieldEventType, "inbox_uploaded"),
		logging.String("path", path),
	)
}

// stop cancels quiet-period timers that have not fired and waits for uploads
// already running.
func (w *inboxWatcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for path, p := range w.pending {
		if p.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func accepted(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	_, ok := inboxExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
