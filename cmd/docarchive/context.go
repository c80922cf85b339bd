package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/ingest"
	"docarchive/internal/logging"
)

type commandContext struct {
	configFlag *string
	ownerFlag  *int64

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, ownerFlag *int64) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		ownerFlag:  ownerFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// ownerID returns the --owner flag, falling back to the configured default.
func (c *commandContext) ownerID() int64 {
	if c.ownerFlag != nil && *c.ownerFlag > 0 {
		return *c.ownerFlag
	}
	if c.config != nil {
		return c.config.Ingest.DefaultOwnerID
	}
	return 1
}

func (c *commandContext) withStore(fn func(*config.Config, *documents.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := documents.Open(cfg)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// withPipeline wires the full ingestion stack for one command and drains it
// before returning.
func (c *commandContext) withPipeline(cmd *cobra.Command, fn func(*ingest.Stack) error) error {
	return c.withStore(func(cfg *config.Config, store *documents.Store) error {
		logger, err := commandLogger(cfg)
		if err != nil {
			return err
		}
		stack, err := ingest.Build(cmd.Context(), cfg, store, logger)
		if err != nil {
			return fmt.Errorf("build ingest pipeline: %w", err)
		}
		defer stack.Close(context.WithoutCancel(cmd.Context())) //nolint:errcheck
		return fn(stack)
	})
}

// commandLogger logs to the shared log file only so command output stays
// readable.
func commandLogger(cfg *config.Config) (*slog.Logger, error) {
	dir := strings.TrimSpace(cfg.Paths.LogDir)
	if dir == "" {
		return logging.NewNop(), nil
	}
	path := filepath.Join(dir, logging.LogFileName)
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           "json",
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
