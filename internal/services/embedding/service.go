package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/logging"
	"docarchive/internal/textutil"
)

// Vectorizer produces one embedding per text.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore persists chunks and resolves document ownership.
type ChunkStore interface {
	GetByID(ctx context.Context, id int64) (*documents.Document, error)
	ReplaceChunks(ctx context.Context, documentID int64, chunks []documents.Chunk) error
}

// Mirror receives a copy of every stored chunk set.
type Mirror interface {
	Upsert(ctx context.Context, ownerID, documentID int64, chunks []documents.Chunk) error
}

// Option customizes the Service.
type Option func(*Service)

// WithMirror attaches a secondary vector index.
func WithMirror(m Mirror) Option {
	return func(s *Service) {
		s.mirror = m
	}
}

// WithVectorizer replaces the HTTP client.
func WithVectorizer(v Vectorizer) Option {
	return func(s *Service) {
		if v != nil {
			s.vectorizer = v
		}
	}
}

// Service chunks text, embeds each chunk and stores the result.
type Service struct {
	enabled    bool
	chunkSize  int
	overlap    int
	vectorizer Vectorizer
	store      ChunkStore
	mirror     Mirror
	logger     *slog.Logger
}

// New builds the embedding service from the embedding config section.
func New(cfg config.Embedding, store ChunkStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		enabled:    cfg.Enabled,
		chunkSize:  cfg.ChunkSize,
		overlap:    cfg.ChunkOverlap,
		vectorizer: NewClient(cfg.URL, time.Duration(cfg.TimeoutSeconds)*time.Second),
		store:      store,
		logger:     logging.NewComponentLogger(logger, "embedding"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether embeddings should be generated at all.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// Embed returns the embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vectorizer.Embed(ctx, text)
}

// Chunk splits text with the configured window and overlap.
func (s *Service) Chunk(text string) []string {
	return textutil.Chunk(text, s.chunkSize, s.overlap)
}

// EmbedAndStore embeds every non-empty chunk and replaces the document's
// stored chunks. Chunks whose embedding fails are logged and skipped. It
// returns the number of chunks stored.
func (s *Service) EmbedAndStore(ctx context.Context, documentID int64, chunks []string) (int, error) {
	logger := logging.WithContext(ctx, s.logger)
	var stored []documents.Chunk
	failed := 0
	for i, text := range chunks {
		if strings.TrimSpace(text) == "" {
			continue
		}
		vec, err := s.vectorizer.Embed(ctx, text)
		if err != nil {
			failed++
			logger.Warn("chunk embedding failed; skipping chunk",
				logging.Int("chunk_index", i),
				logging.Error(err),
			)
			continue
		}
		stored = append(stored, documents.Chunk{
			DocumentID: documentID,
			Index:      len(stored),
			Content:    text,
			Embedding:  vec,
		})
	}
	if err := s.store.ReplaceChunks(ctx, documentID, stored); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	if s.mirror != nil && len(stored) > 0 {
		s.mirrorChunks(ctx, documentID, stored)
	}
	logger.Info("embeddings stored",
		logging.Int("chunks", len(stored)),
		logging.Int("failed", failed),
	)
	return len(stored), nil
}

// mirrorChunks is best effort: SQLite remains the source of truth.
func (s *Service) mirrorChunks(ctx context.Context, documentID int64, chunks []documents.Chunk) {
	logger := logging.WithContext(ctx, s.logger)
	doc, err := s.store.GetByID(ctx, documentID)
	if err != nil || doc == nil {
		logger.Warn("vector mirror skipped; document not found", logging.Error(err))
		return
	}
	if err := s.mirror.Upsert(ctx, doc.OwnerID, documentID, chunks); err != nil {
		logging.WarnWithContext(logger, "vector mirror update failed", "vector_mirror_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check embedding.pgvector_dsn and embedding.dimensions"),
			logging.String(logging.FieldImpact, "pgvector index lacks this document until it is reprocessed"),
		)
	}
}
