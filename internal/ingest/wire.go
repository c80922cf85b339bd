package ingest

import (
	"context"
	"log/slog"

	"docarchive/internal/archive"
	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/documents/vectorpg"
	"docarchive/internal/duplicates"
	"docarchive/internal/logging"
	"docarchive/internal/normalize"
	"docarchive/internal/services/analysis"
	"docarchive/internal/services/embedding"
	"docarchive/internal/services/llm"
	"docarchive/internal/services/ocr"
	"docarchive/internal/services/pdfarchive"
)

// BackendPGVector selects the PostgreSQL similarity index.
const BackendPGVector = "pgvector"

// Stack is the fully wired ingestion pipeline.
type Stack struct {
	Service      *Service
	Orchestrator *Orchestrator
	Cabinet      *archive.Cabinet
	LLM          *llm.Client
	// Vectors is nil unless the pgvector backend is configured and reachable.
	Vectors *vectorpg.Index
}

// BuildOption adjusts the stack before it is assembled.
type BuildOption func(*buildSettings)

type buildSettings struct {
	mutate       func(*Dependencies)
	orchOpts     []Option
	dispatchOpts []DispatcherOption
	llmOpts      []llm.Option
}

// WithDependencyOverride lets callers replace collaborators, mostly tests
// swapping external tools for fakes.
func WithDependencyOverride(fn func(*Dependencies)) BuildOption {
	return func(s *buildSettings) { s.mutate = fn }
}

// WithOrchestratorOptions forwards options to NewOrchestrator.
func WithOrchestratorOptions(opts ...Option) BuildOption {
	return func(s *buildSettings) { s.orchOpts = append(s.orchOpts, opts...) }
}

// WithDispatcherOptions forwards options to the dispatcher.
func WithDispatcherOptions(opts ...DispatcherOption) BuildOption {
	return func(s *buildSettings) { s.dispatchOpts = append(s.dispatchOpts, opts...) }
}

// WithLLMOptions forwards options to the analysis model client.
func WithLLMOptions(opts ...llm.Option) BuildOption {
	return func(s *buildSettings) { s.llmOpts = append(s.llmOpts, opts...) }
}

// Build assembles the pipeline from configuration.
func Build(ctx context.Context, cfg *config.Config, store *documents.Store, logger *slog.Logger, opts ...BuildOption) (*Stack, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	settings := &buildSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	client := llm.NewClient(llm.ConfigFromSettings(cfg.GetLLM()), settings.llmOpts...)
	cabinet := archive.NewCabinet(cfg, logger)
	stack := &Stack{Cabinet: cabinet, LLM: client}

	var index duplicates.SimilarityIndex = store
	var embedOpts []embedding.Option
	if cfg.Embedding.Enabled && cfg.Embedding.Backend == BackendPGVector {
		vectors, err := vectorpg.Open(ctx, cfg.Embedding, logger)
		if err != nil {
			logging.WarnWithContext(logger, "pgvector backend unavailable; using sqlite similarity", "pgvector_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "content similarity scans embeddings in process"),
				logging.String(logging.FieldErrorHint, "check embedding.pgvector_dsn and that the vector extension is installed"),
			)
		} else {
			stack.Vectors = vectors
			index = vectors
			embedOpts = append(embedOpts, embedding.WithMirror(vectors))
		}
	}

	deps := Dependencies{
		Normalizer: normalize.New(normalize.OptionsFromConfig(cfg.Preprocessing), logger),
		Extractor:  ocr.New(cfg.OCR, logger),
		Analyzer:   analysis.New(client, cfg.LLM.MaxInputChars, logger),
		Embedder:   embedding.New(cfg.Embedding, store, logger, embedOpts...),
		Placer:     cabinet,
	}
	if cfg.ArchivalPDF.Enabled {
		deps.Converter = pdfarchive.New(cfg.ArchivalPDF, logger)
	}
	if cfg.Duplicates.Enabled {
		deps.Resolver = duplicates.NewResolver(cfg.Duplicates, store, index, logger)
	}
	if stack.Vectors != nil {
		deps.Vectors = stack.Vectors
	}
	if settings.mutate != nil {
		settings.mutate(&deps)
	}

	orch, err := NewOrchestrator(cfg, store, deps, logger, settings.orchOpts...)
	if err != nil {
		stack.closeVectors()
		return nil, err
	}
	stack.Orchestrator = orch
	stack.Service = NewService(cfg, store, orch, logger, settings.dispatchOpts...)
	return stack, nil
}

// Close drains the workers and releases the vector index. The document store
// belongs to the caller.
func (s *Stack) Close(ctx context.Context) error {
	err := s.Service.Close(ctx)
	s.closeVectors()
	return err
}

func (s *Stack) closeVectors() {
	if s.Vectors != nil {
		s.Vectors.Close()
	}
}
