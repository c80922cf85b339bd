package duplicates

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/logging"
)

// Strategy names the rule that found a duplicate.
type Strategy string

const (
	StrategyExactHash Strategy = "exact_hash"
	StrategyContent   Strategy = "content_similarity"
	StrategyMetadata  Strategy = "metadata_match"
)

// Action is what the pipeline should do with the new document.
type Action string

const (
	ActionNone   Action = "none"
	ActionFlag   Action = "flag"
	ActionDelete Action = "delete"
)

// Candidate is the existing document the new one appears to repeat.
type Candidate struct {
	OriginalID int64
	Similarity float64
	Strategy   Strategy
}

// Decision pairs the best candidate with the resulting action. Candidate is
// meaningful only when Found is set.
type Decision struct {
	Found     bool
	Candidate Candidate
	Action    Action
}

// Store is the metadata lookup surface the resolver needs. Lookups only
// return documents with an id below beforeID, so the earliest upload is
// always the original.
type Store interface {
	FindByHash(ctx context.Context, ownerID int64, hash string, beforeID int64) (*documents.Document, error)
	FindMetadataMatch(ctx context.Context, q documents.MetadataQuery) (*documents.Document, error)
	FirstEmbedding(ctx context.Context, documentID int64) ([]float32, bool, error)
}

// SimilarityIndex answers nearest-neighbour queries over chunk embeddings.
type SimilarityIndex interface {
	TopSimilar(ctx context.Context, ownerID int64, embedding []float32, beforeID int64, minScore float64) (documents.Match, bool, error)
}

// Resolver runs the duplicate strategies.
type Resolver struct {
	cfg    config.Duplicates
	store  Store
	index  SimilarityIndex
	logger *slog.Logger
}

// NewResolver wires a resolver. index may be nil to skip content similarity.
func NewResolver(cfg config.Duplicates, store Store, index SimilarityIndex, logger *slog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		store:  store,
		index:  index,
		logger: logging.NewComponentLogger(logger, "duplicates"),
	}
}

// Resolve finds the first matching candidate for doc and maps its similarity
// to an action.
func (r *Resolver) Resolve(ctx context.Context, doc *documents.Document) Decision {
	if !r.cfg.Enabled || doc == nil {
		return Decision{Action: ActionNone}
	}
	if r.cfg.QueryTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.QueryTimeoutSeconds)*time.Second)
		defer cancel()
	}
	candidate, ok := r.Detect(ctx, doc)
	if !ok {
		return Decision{Action: ActionNone}
	}
	return Decision{Found: true, Candidate: candidate, Action: r.Decide(candidate.Similarity)}
}

// Decide maps a similarity score to an action using the configured
// thresholds.
func (r *Resolver) Decide(similarity float64) Action {
	switch {
	case similarity >= r.cfg.ExactThreshold:
		return ActionDelete
	case similarity >= r.cfg.FlagThreshold:
		return ActionFlag
	default:
		return ActionNone
	}
}

// Detect runs the strategies in order. A strategy that errors is logged and
// skipped.
func (r *Resolver) Detect(ctx context.Context, doc *documents.Document) (Candidate, bool) {
	strategies := []struct {
		name Strategy
		run  func(context.Context, *documents.Document) (Candidate, bool, error)
	}{
		{StrategyExactHash, r.exactHash},
		{StrategyContent, r.contentSimilarity},
		{StrategyMetadata, r.metadataMatch},
	}
	logger := logging.WithContext(ctx, r.logger)
	for _, s := range strategies {
		c, ok, err := s.run(ctx, doc)
		if err != nil {
			logging.WarnWithContext(logger, "duplicate check failed; treating as no match", "duplicate_check_failed",
				logging.String("strategy", string(s.name)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "document may be kept even if it is a duplicate"),
			)
			continue
		}
		if ok {
			logger.Info("duplicate candidate found",
				logging.String("strategy", string(c.Strategy)),
				logging.Int64("original_id", c.OriginalID),
				logging.Float64("similarity", c.Similarity),
			)
			return c, true
		}
	}
	return Candidate{}, false
}

func (r *Resolver) exactHash(ctx context.Context, doc *documents.Document) (Candidate, bool, error) {
	if doc.ContentHash == "" {
		return Candidate{}, false, nil
	}
	match, err := r.store.FindByHash(ctx, doc.OwnerID, doc.ContentHash, doc.ID)
	if err != nil {
		return Candidate{}, false, err
	}
	if match == nil {
		return Candidate{}, false, nil
	}
	return Candidate{OriginalID: match.ID, Similarity: 1.0, Strategy: StrategyExactHash}, true, nil
}

func (r *Resolver) contentSimilarity(ctx context.Context, doc *documents.Document) (Candidate, bool, error) {
	if r.index == nil || utf8.RuneCountInString(doc.ExtractedText) <= r.cfg.MinTextLength {
		return Candidate{}, false, nil
	}
	embedding, ok, err := r.store.FirstEmbedding(ctx, doc.ID)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("load embedding: %w", err)
	}
	if !ok {
		return Candidate{}, false, nil
	}
	match, ok, err := r.index.TopSimilar(ctx, doc.OwnerID, embedding, doc.ID, r.cfg.ContentThreshold)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("similarity query: %w", err)
	}
	if !ok {
		return Candidate{}, false, nil
	}
	return Candidate{OriginalID: match.DocumentID, Similarity: match.Score, Strategy: StrategyContent}, true, nil
}

func (r *Resolver) metadataMatch(ctx context.Context, doc *documents.Document) (Candidate, bool, error) {
	if doc.Amount == nil || *doc.Amount == 0 || doc.Kind == "" {
		return Candidate{}, false, nil
	}
	match, err := r.store.FindMetadataMatch(ctx, documents.MetadataQuery{
		OwnerID:    doc.OwnerID,
		BeforeID:   doc.ID,
		Amount:     *doc.Amount,
		Kind:       doc.Kind,
		Date:       doc.DocumentDate,
		WindowDays: r.cfg.MetadataWindowDays,
	})
	if err != nil {
		return Candidate{}, false, err
	}
	if match == nil {
		return Candidate{}, false, nil
	}
	score := r.cfg.MetadataBaseScore
	if doc.DocumentDate != nil && match.DocumentDate != nil {
		score += r.cfg.MetadataDateBonus
	}
	return Candidate{OriginalID: match.ID, Similarity: score, Strategy: StrategyMetadata}, true, nil
}
