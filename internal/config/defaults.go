package config

const (
	defaultConfigPath             = "~/.config/docarchive/config.toml"
	defaultUploadDir              = "~/.local/share/docarchive/uploads"
	defaultArchiveDir             = "~/Documents/archive"
	defaultStagingDir             = "~/.local/share/docarchive/staging"
	defaultInboxDir               = "~/Documents/inbox"
	defaultDataDir                = "~/.local/share/docarchive"
	defaultLogDir                 = "~/.local/share/docarchive/logs"
	defaultLogRetentionDays       = 60
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultMinDocumentAreaRatio   = 0.10
	defaultDeskewAngleThreshold   = 0.5
	defaultCLAHEClipLimit         = 2.0
	defaultCLAHETileGrid          = 8
	defaultBilateralDiameter      = 9
	defaultBilateralSigma         = 75.0
	defaultExactThreshold         = 0.95
	defaultFlagThreshold          = 0.85
	defaultContentThreshold       = 0.85
	defaultMinTextLength          = 100
	defaultMetadataWindowDays     = 30
	defaultMetadataBaseScore      = 0.85
	defaultMetadataDateBonus      = 0.10
	defaultDuplicateQueryTimeout  = 10
	defaultUnclassifiedLabel      = "unclassified"
	defaultMaxStemLength          = 50
	defaultTesseractBinary        = "tesseract"
	defaultPDFToTextBinary        = "pdftotext"
	defaultOCRTimeoutSeconds      = 120
	defaultOCRmyPDFBinary         = "ocrmypdf"
	defaultArchivalQuality        = "high"
	defaultArchivalTimeoutSeconds = 300
	defaultRotateThreshold        = 14.0
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "openai/gpt-4o-mini"
	defaultLLMReferer             = "https://github.com/docarchive/docarchive"
	defaultLLMTitle               = "docarchive"
	defaultLLMTimeoutSeconds      = 60
	defaultLLMMaxInputChars       = 4000
	defaultEmbeddingURL           = "http://127.0.0.1:8001"
	defaultEmbeddingTimeout       = 30
	defaultChunkSize              = 500
	defaultChunkOverlap           = 50
	defaultEmbeddingBackend       = "sqlite"
	defaultEmbeddingDimensions    = 1536
	defaultIngestWorkers          = 4
	defaultIngestQueueSize        = 64
	defaultReprocessConcurrency   = 2
	defaultInboxDebounceMillis    = 750
	defaultOwnerID                = 1
	defaultMaxUploadMB            = 10
)

var defaultOCRLanguages = []string{"fra", "deu", "eng"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:  defaultUploadDir,
			ArchiveDir: defaultArchiveDir,
			StagingDir: defaultStagingDir,
			InboxDir:   defaultInboxDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
		},
		Preprocessing: Preprocessing{
			Enabled:              true,
			AutoCrop:             true,
			Deskew:               true,
			ContrastEnhancement:  true,
			NoiseReduction:       true,
			MinDocumentAreaRatio: defaultMinDocumentAreaRatio,
			DeskewAngleThreshold: defaultDeskewAngleThreshold,
			CLAHEClipLimit:       defaultCLAHEClipLimit,
			CLAHETileGrid:        defaultCLAHETileGrid,
			BilateralDiameter:    defaultBilateralDiameter,
			BilateralSigmaColor:  defaultBilateralSigma,
			BilateralSigmaSpace:  defaultBilateralSigma,
		},
		Duplicates: Duplicates{
			Enabled:             true,
			ExactThreshold:      defaultExactThreshold,
			FlagThreshold:       defaultFlagThreshold,
			ContentThreshold:    defaultContentThreshold,
			MinTextLength:       defaultMinTextLength,
			MetadataWindowDays:  defaultMetadataWindowDays,
			MetadataBaseScore:   defaultMetadataBaseScore,
			MetadataDateBonus:   defaultMetadataDateBonus,
			QueryTimeoutSeconds: defaultDuplicateQueryTimeout,
		},
		Archive: Archive{
			UnclassifiedLabel: defaultUnclassifiedLabel,
			MaxStemLength:     defaultMaxStemLength,
		},
		OCR: OCR{
			TesseractBinary: defaultTesseractBinary,
			PDFToTextBinary: defaultPDFToTextBinary,
			Languages:       append([]string(nil), defaultOCRLanguages...),
			TimeoutSeconds:  defaultOCRTimeoutSeconds,
		},
		ArchivalPDF: ArchivalPDF{
			Enabled:         true,
			OCRmyPDFBinary:  defaultOCRmyPDFBinary,
			Quality:         defaultArchivalQuality,
			TimeoutSeconds:  defaultArchivalTimeoutSeconds,
			RotateThreshold: defaultRotateThreshold,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			MaxInputChars:  defaultLLMMaxInputChars,
		},
		Embedding: Embedding{
			Enabled:        true,
			URL:            defaultEmbeddingURL,
			TimeoutSeconds: defaultEmbeddingTimeout,
			ChunkSize:      defaultChunkSize,
			ChunkOverlap:   defaultChunkOverlap,
			Backend:        defaultEmbeddingBackend,
			Dimensions:     defaultEmbeddingDimensions,
		},
		Ingest: Ingest{
			Workers:              defaultIngestWorkers,
			QueueSize:            defaultIngestQueueSize,
			RecoverOnStart:       true,
			ReprocessConcurrency: defaultReprocessConcurrency,
			InboxDebounceMillis:  defaultInboxDebounceMillis,
			DefaultOwnerID:       defaultOwnerID,
			MaxUploadMB:          defaultMaxUploadMB,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
