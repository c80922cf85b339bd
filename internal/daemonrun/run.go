package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"docarchive/internal/config"
	"docarchive/internal/daemon"
	"docarchive/internal/deps"
	"docarchive/internal/documents"
	"docarchive/internal/ingest"
	"docarchive/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

const (
	runLogPattern = "docarchive-*.log"
	pidFileName   = "docarchived.pid"
)

// Run starts the docarchive daemon and blocks until the context ends or the
// process receives SIGINT or SIGTERM.
func Run(parent context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, logPath, err := openRunLogger(cfg, opts)
	if err != nil {
		return err
	}
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, pidFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := documents.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "document store unavailable", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions"),
		)
		return err
	}
	defer store.Close()

	stack, err := ingest.Build(ctx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("build ingest pipeline: %w", err)
	}
	if stack.Vectors != nil {
		defer stack.Vectors.Close()
	}

	d, err := daemon.New(cfg, store, stack.Service, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and database access"),
		)
		return err
	}
	defer d.Stop()

	logger.Info("waiting for documents", logging.String("log", logPath))
	<-ctx.Done()
	logger.Info("docarchive daemon shutting down")
	return nil
}

// openRunLogger writes each run to its own timestamped file, points
// LogFileName at it and prunes run logs past retention.
func openRunLogger(cfg *config.Config, opts Options) (*slog.Logger, string, error) {
	logDir := cfg.Paths.LogDir
	logPath := filepath.Join(logDir, "docarchive-"+time.Now().UTC().Format("20060102T150405.000Z")+".log")

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}

	if err := pointCurrentLog(filepath.Join(logDir, logging.LogFileName), logPath); err != nil {
		logger.Warn("current log link not updated", logging.Error(err))
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     logDir,
		Pattern: runLogPattern,
		Exclude: []string{logPath},
	})
	return logger, logPath, nil
}

// pointCurrentLog replaces link with a symlink to target, or a hard link on
// filesystems without symlinks.
func pointCurrentLog(link, target string) error {
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", link, err)
	}
	if os.Symlink(target, link) == nil {
		return nil
	}
	if err := os.Link(target, link); err != nil {
		return fmt.Errorf("link %s: %w", link, err)
	}
	return nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("embeddings_enabled", cfg.Embedding.Enabled),
		logging.String("embedding_backend", cfg.Embedding.Backend),
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		attrs = append(attrs, logging.Bool(status.Command+"_available", status.Available))
		if status.Path != "" {
			attrs = append(attrs, logging.String(status.Command+"_binary", status.Path))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
