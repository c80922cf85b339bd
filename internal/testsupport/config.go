package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"docarchive/internal/config"
)

// ConfigOption adjusts the config produced by NewConfig.
type ConfigOption func(*testConfig)

type testConfig struct {
	t    testing.TB
	root string
	cfg  config.Config
}

func (c *testConfig) dir(name string) string {
	return filepath.Join(c.root, name)
}

func (c *testConfig) mkdir(name string) string {
	path := c.dir(name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		c.t.Fatalf("mkdir %s: %v", name, err)
	}
	return path
}

// NewConfig returns the default config with every directory moved under a
// fresh temp dir. The inbox, the LLM and the embedding service are switched
// off so nothing leaves the machine unless an option turns it back on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	c := &testConfig{t: t, root: t.TempDir(), cfg: config.Default()}

	c.cfg.Paths.UploadDir = c.dir("uploads")
	c.cfg.Paths.ArchiveDir = c.dir("archive")
	c.cfg.Paths.StagingDir = c.dir("staging")
	c.cfg.Paths.DataDir = c.dir("data")
	c.cfg.Paths.LogDir = c.dir("logs")
	c.cfg.Paths.InboxDir = ""
	c.cfg.LLM.APIKey = ""
	c.cfg.Embedding.URL = "http://127.0.0.1:0"
	c.cfg.Ingest.Workers = 2
	c.cfg.Ingest.QueueSize = 8

	for _, opt := range opts {
		opt(c)
	}
	return &c.cfg
}

// WithLLMKey sets llm.api_key.
func WithLLMKey(key string) ConfigOption {
	return func(c *testConfig) { c.cfg.LLM.APIKey = key }
}

// WithInbox creates and enables a watch folder.
func WithInbox() ConfigOption {
	return func(c *testConfig) { c.cfg.Paths.InboxDir = c.mkdir("inbox") }
}

// WithStubbedBinaries puts no-op executables named after the external tools
// (tesseract, pdftotext and ocrmypdf when names is empty) first on PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(c *testConfig) {
		if len(names) == 0 {
			names = []string{"tesseract", "pdftotext", "ocrmypdf"}
		}
		bin := c.mkdir("bin")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				c.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		c.t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp dir holding every directory of cfg.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
