package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	UploadDir  string `toml:"upload_dir"`
	ArchiveDir string `toml:"archive_dir"`
	StagingDir string `toml:"staging_dir"`
	InboxDir   string `toml:"inbox_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
}

// Preprocessing controls the image normalizer stages.
type Preprocessing struct {
	Enabled              bool    `toml:"enabled"`
	AutoCrop             bool    `toml:"auto_crop"`
	Deskew               bool    `toml:"deskew"`
	ContrastEnhancement  bool    `toml:"contrast_enhancement"`
	NoiseReduction       bool    `toml:"noise_reduction"`
	MinDocumentAreaRatio float64 `toml:"min_document_area_ratio"`
	DeskewAngleThreshold float64 `toml:"deskew_angle_threshold"`
	CLAHEClipLimit       float64 `toml:"clahe_clip_limit"`
	CLAHETileGrid        int     `toml:"clahe_tile_grid"`
	BilateralDiameter    int     `toml:"bilateral_diameter"`
	BilateralSigmaColor  float64 `toml:"bilateral_sigma_color"`
	BilateralSigmaSpace  float64 `toml:"bilateral_sigma_space"`
}

// Duplicates holds the duplicate resolution policy. The thresholds have no
// documented derivation and are kept tunable on purpose.
type Duplicates struct {
	Enabled             bool    `toml:"enabled"`
	ExactThreshold      float64 `toml:"exact_threshold"`
	FlagThreshold       float64 `toml:"flag_threshold"`
	ContentThreshold    float64 `toml:"content_threshold"`
	MinTextLength       int     `toml:"min_text_length"`
	MetadataWindowDays  int     `toml:"metadata_window_days"`
	MetadataBaseScore   float64 `toml:"metadata_base_score"`
	MetadataDateBonus   float64 `toml:"metadata_date_bonus"`
	QueryTimeoutSeconds int     `toml:"query_timeout_seconds"`
}

// Archive contains filing cabinet layout settings.
type Archive struct {
	UnclassifiedLabel string `toml:"unclassified_label"`
	MaxStemLength     int    `toml:"max_stem_length"`
}

// OCR configures the local text extraction tools.
type OCR struct {
	TesseractBinary string   `toml:"tesseract_binary"`
	PDFToTextBinary string   `toml:"pdftotext_binary"`
	Languages       []string `toml:"languages"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

// ArchivalPDF configures searchable PDF production.
type ArchivalPDF struct {
	Enabled         bool    `toml:"enabled"`
	OCRmyPDFBinary  string  `toml:"ocrmypdf_binary"`
	Quality         string  `toml:"quality"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	RotateThreshold float64 `toml:"rotate_threshold"`
}

// LLM contains the metadata analysis model connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxInputChars  int    `toml:"max_input_chars"`
}

// Embedding configures vector generation and the similarity backend.
type Embedding struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ChunkSize      int    `toml:"chunk_size"`
	ChunkOverlap   int    `toml:"chunk_overlap"`
	Backend        string `toml:"backend"`
	PGVectorDSN    string `toml:"pgvector_dsn"`
	Dimensions     int    `toml:"dimensions"`
}

// Ingest configures the background worker pool.
type Ingest struct {
	Workers              int   `toml:"workers"`
	QueueSize            int   `toml:"queue_size"`
	RecoverOnStart       bool  `toml:"recover_on_start"`
	ReprocessConcurrency int   `toml:"reprocess_concurrency"`
	InboxDebounceMillis  int   `toml:"inbox_debounce_ms"`
	DefaultOwnerID       int64 `toml:"default_owner_id"`
	// MaxUploadMB rejects larger uploads; 0 disables the cap.
	MaxUploadMB int `toml:"max_upload_mb"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for docarchive.
//
// Configuration sections by subsystem:
//   - Paths: upload, archive, staging, inbox, data and log directories
//   - Preprocessing: image normalizer stage toggles and tuning
//   - Duplicates: duplicate resolution thresholds
//   - Archive: filing cabinet layout
//   - OCR: tesseract/pdftotext text extraction
//   - ArchivalPDF: ocrmypdf searchable PDF production
//   - LLM: metadata analysis model
//   - Embedding: chunk embeddings and similarity backend
//   - Ingest: background worker pool
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Preprocessing Preprocessing `toml:"preprocessing"`
	Duplicates    Duplicates    `toml:"duplicates"`
	Archive       Archive       `toml:"archive"`
	OCR           OCR           `toml:"ocr"`
	ArchivalPDF   ArchivalPDF   `toml:"archival_pdf"`
	LLM           LLM           `toml:"llm"`
	Embedding     Embedding     `toml:"embedding"`
	Ingest        Ingest        `toml:"ingest"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	loadDotEnv(filepath.Dir(resolvedPath))

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docarchive.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.ArchiveDir, c.Paths.StagingDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.InboxDir) != "" {
		// The inbox may live on removable or network storage.
		_ = os.MkdirAll(c.Paths.InboxDir, 0o755)
	}
	return nil
}

// DatabasePath returns the sqlite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "docarchive.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the analysis model connection settings.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
