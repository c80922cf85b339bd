package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envLLMAPIKey    = "DOCARCHIVE_LLM_API_KEY"
	envEmbeddingURL = "DOCARCHIVE_EMBEDDING_URL"
	envPGVectorDSN  = "DOCARCHIVE_PGVECTOR_DSN"
)

// loadDotEnv reads .env files next to the config file and in the working
// directory. Variables already present in the environment win.
func loadDotEnv(configDir string) {
	candidates := []string{".env"}
	if strings.TrimSpace(configDir) != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOCR()
	c.normalizeArchivalPDF()
	c.normalizeLLM()
	c.normalizeEmbedding()
	c.normalizeArchive()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.upload_dir", &c.Paths.UploadDir, defaultUploadDir},
		{"paths.archive_dir", &c.Paths.ArchiveDir, defaultArchiveDir},
		{"paths.staging_dir", &c.Paths.StagingDir, defaultStagingDir},
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	// An empty inbox disables the watch folder.
	if inbox := strings.TrimSpace(c.Paths.InboxDir); inbox != "" {
		expanded, err := expandPath(inbox)
		if err != nil {
			return fmt.Errorf("paths.inbox_dir: %w", err)
		}
		c.Paths.InboxDir = expanded
	}
	return nil
}

func (c *Config) normalizeOCR() {
	c.OCR.TesseractBinary = strings.TrimSpace(c.OCR.TesseractBinary)
	if c.OCR.TesseractBinary == "" {
		c.OCR.TesseractBinary = defaultTesseractBinary
	}
	c.OCR.PDFToTextBinary = strings.TrimSpace(c.OCR.PDFToTextBinary)
	if c.OCR.PDFToTextBinary == "" {
		c.OCR.PDFToTextBinary = defaultPDFToTextBinary
	}
	langs := make([]string, 0, len(c.OCR.Languages))
	for _, lang := range c.OCR.Languages {
		if trimmed := strings.ToLower(strings.TrimSpace(lang)); trimmed != "" {
			langs = append(langs, trimmed)
		}
	}
	if len(langs) == 0 {
		langs = append(langs, defaultOCRLanguages...)
	}
	c.OCR.Languages = langs
	if c.OCR.TimeoutSeconds <= 0 {
		c.OCR.TimeoutSeconds = defaultOCRTimeoutSeconds
	}
}

func (c *Config) normalizeArchivalPDF() {
	c.ArchivalPDF.OCRmyPDFBinary = strings.TrimSpace(c.ArchivalPDF.OCRmyPDFBinary)
	if c.ArchivalPDF.OCRmyPDFBinary == "" {
		c.ArchivalPDF.OCRmyPDFBinary = defaultOCRmyPDFBinary
	}
	c.ArchivalPDF.Quality = strings.ToLower(strings.TrimSpace(c.ArchivalPDF.Quality))
	if c.ArchivalPDF.Quality == "" {
		c.ArchivalPDF.Quality = defaultArchivalQuality
	}
	if c.ArchivalPDF.TimeoutSeconds <= 0 {
		c.ArchivalPDF.TimeoutSeconds = defaultArchivalTimeoutSeconds
	}
}

func (c *Config) normalizeLLM() {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		if value, ok := os.LookupEnv(envLLMAPIKey); ok {
			c.LLM.APIKey = value
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.MaxInputChars <= 0 {
		c.LLM.MaxInputChars = defaultLLMMaxInputChars
	}
}

func (c *Config) normalizeEmbedding() {
	if value, ok := os.LookupEnv(envEmbeddingURL); ok && strings.TrimSpace(value) != "" {
		c.Embedding.URL = value
	}
	c.Embedding.URL = strings.TrimRight(strings.TrimSpace(c.Embedding.URL), "/")
	if strings.TrimSpace(c.Embedding.PGVectorDSN) == "" {
		if value, ok := os.LookupEnv(envPGVectorDSN); ok {
			c.Embedding.PGVectorDSN = value
		}
	}
	c.Embedding.PGVectorDSN = strings.TrimSpace(c.Embedding.PGVectorDSN)
	c.Embedding.Backend = strings.ToLower(strings.TrimSpace(c.Embedding.Backend))
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = defaultEmbeddingBackend
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.UnclassifiedLabel = strings.TrimSpace(c.Archive.UnclassifiedLabel)
	if c.Archive.UnclassifiedLabel == "" {
		c.Archive.UnclassifiedLabel = defaultUnclassifiedLabel
	}
	if c.Archive.MaxStemLength <= 0 {
		c.Archive.MaxStemLength = defaultMaxStemLength
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
