package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePreprocessing(); err != nil {
		return err
	}
	if err := c.validateDuplicates(); err != nil {
		return err
	}
	if err := c.validateArchivalPDF(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.UploadDir == "" {
		return errors.New("paths.upload_dir must be set")
	}
	if c.Paths.ArchiveDir == "" {
		return errors.New("paths.archive_dir must be set")
	}
	if c.Paths.UploadDir == c.Paths.ArchiveDir {
		return errors.New("paths.upload_dir and paths.archive_dir must differ")
	}
	return nil
}

func (c *Config) validatePreprocessing() error {
	p := c.Preprocessing
	if p.MinDocumentAreaRatio <= 0 || p.MinDocumentAreaRatio >= 1 {
		return errors.New("preprocessing.min_document_area_ratio must be between 0 and 1")
	}
	if p.DeskewAngleThreshold < 0 || p.DeskewAngleThreshold >= 45 {
		return errors.New("preprocessing.deskew_angle_threshold must be between 0 and 45 degrees")
	}
	if p.CLAHEClipLimit <= 0 {
		return errors.New("preprocessing.clahe_clip_limit must be positive")
	}
	if p.CLAHETileGrid < 1 || p.CLAHETileGrid > 64 {
		return errors.New("preprocessing.clahe_tile_grid must be between 1 and 64")
	}
	if p.BilateralDiameter < 1 {
		return errors.New("preprocessing.bilateral_diameter must be at least 1")
	}
	if p.BilateralSigmaColor <= 0 || p.BilateralSigmaSpace <= 0 {
		return errors.New("preprocessing bilateral sigmas must be positive")
	}
	return nil
}

func (c *Config) validateDuplicates() error {
	d := c.Duplicates
	for _, field := range []struct {
		key   string
		value float64
	}{
		{"duplicates.exact_threshold", d.ExactThreshold},
		{"duplicates.flag_threshold", d.FlagThreshold},
		{"duplicates.content_threshold", d.ContentThreshold},
		{"duplicates.metadata_base_score", d.MetadataBaseScore},
		{"duplicates.metadata_date_bonus", d.MetadataDateBonus},
	} {
		if field.value < 0 || field.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", field.key)
		}
	}
	if d.FlagThreshold > d.ExactThreshold {
		return errors.New("duplicates.flag_threshold must not exceed duplicates.exact_threshold")
	}
	if d.MinTextLength < 0 {
		return errors.New("duplicates.min_text_length must be non-negative")
	}
	if d.MetadataWindowDays < 0 {
		return errors.New("duplicates.metadata_window_days must be non-negative")
	}
	if d.QueryTimeoutSeconds <= 0 {
		return errors.New("duplicates.query_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateArchivalPDF() error {
	switch c.ArchivalPDF.Quality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("archival_pdf.quality must be low, medium, or high (got %q)", c.ArchivalPDF.Quality)
	}
	if c.ArchivalPDF.RotateThreshold < 0 {
		return errors.New("archival_pdf.rotate_threshold must be non-negative")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := c.Embedding
	if e.ChunkSize <= 0 {
		return errors.New("embedding.chunk_size must be positive")
	}
	if e.ChunkOverlap < 0 || e.ChunkOverlap >= e.ChunkSize {
		return errors.New("embedding.chunk_overlap must be non-negative and smaller than embedding.chunk_size")
	}
	if e.TimeoutSeconds <= 0 {
		return errors.New("embedding.timeout_seconds must be positive")
	}
	if e.Enabled && strings.TrimSpace(e.URL) == "" {
		return errors.New("embedding.url must be set when embedding.enabled is true")
	}
	switch e.Backend {
	case "sqlite":
	case "pgvector":
		if e.PGVectorDSN == "" {
			return fmt.Errorf("embedding.pgvector_dsn must be set when embedding.backend is pgvector. Set %s or edit the config file", envPGVectorDSN)
		}
		if e.Dimensions <= 0 {
			return errors.New("embedding.dimensions must be positive for the pgvector backend")
		}
	default:
		return fmt.Errorf("embedding.backend must be sqlite or pgvector (got %q)", e.Backend)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.Workers <= 0 {
		return errors.New("ingest.workers must be positive")
	}
	if c.Ingest.QueueSize <= 0 {
		return errors.New("ingest.queue_size must be positive")
	}
	if c.Ingest.ReprocessConcurrency <= 0 {
		return errors.New("ingest.reprocess_concurrency must be positive")
	}
	if c.Ingest.InboxDebounceMillis < 0 {
		return errors.New("ingest.inbox_debounce_ms must be non-negative")
	}
	if c.Ingest.DefaultOwnerID <= 0 {
		return errors.New("ingest.default_owner_id must be positive")
	}
	if c.Ingest.MaxUploadMB < 0 {
		return errors.New("ingest.max_upload_mb must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
