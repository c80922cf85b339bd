// Package vectorpg mirrors chunk embeddings into PostgreSQL with the pgvector
// extension and answers nearest-neighbour queries there instead of scanning
// SQLite blobs in process.
package vectorpg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/logging"
)

const (
	tableName      = "document_chunk_vectors"
	dialTimeout    = 10 * time.Second
	maxConns int32 = 4
)

// ErrDimensionMismatch is returned when an embedding does not match the
// configured vector width.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Index stores one row per chunk embedding, keyed by document and chunk index.
type Index struct {
	pool       *pgxpool.Pool
	dimensions int
	logger     *slog.Logger
}

// Open connects to the configured DSN and creates the table if needed.
func Open(ctx context.Context, cfg config.Embedding, logger *slog.Logger) (*Index, error) {
	if cfg.PGVectorDSN == "" {
		return nil, errors.New("pgvector dsn is empty")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("pgvector dimensions must be positive")
	}
	logger = logging.NewComponentLogger(logger, "vectorpg")

	pc, err := pgxpool.ParseConfig(cfg.PGVectorDSN)
	if err != nil {
		return nil, fmt.Errorf("parse pgvector dsn: %w", err)
	}
	pc.MaxConns = maxConns
	pc.ConnConfig.RuntimeParams["application_name"] = "docarchive"

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgvector: %w", err)
	}

	idx := &Index{pool: pool, dimensions: cfg.Dimensions, logger: logger}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("pgvector index ready", logging.Int("dimensions", cfg.Dimensions))
	return idx, nil
}

// Close releases the connection pool.
func (i *Index) Close() {
	if i != nil && i.pool != nil {
		i.pool.Close()
	}
}

// Ping checks the connection.
func (i *Index) Ping(ctx context.Context) error {
	return i.pool.Ping(ctx)
}

func (i *Index) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(i.dimensions) {
		if _, err := i.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	return nil
}

func schemaStatements(dimensions int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            document_id BIGINT NOT NULL,
            owner_id BIGINT NOT NULL,
            chunk_index INTEGER NOT NULL,
            embedding vector(%d) NOT NULL,
            PRIMARY KEY (document_id, chunk_index)
        )`, tableName, dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s (owner_id)`, tableName, tableName),
	}
}

// Upsert replaces every stored embedding of documentID with chunks. Chunks
// without an embedding are skipped.
func (i *Index) Upsert(ctx context.Context, ownerID, documentID int64, chunks []documents.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 && len(chunk.Embedding) != i.dimensions {
			return fmt.Errorf("chunk %d: %w (got %d, want %d)", chunk.Index, ErrDimensionMismatch, len(chunk.Embedding), i.dimensions)
		}
	}
	return pgx.BeginFunc(ctx, i.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+tableName+` WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("clear vectors: %w", err)
		}
		batch := &pgx.Batch{}
		for _, chunk := range chunks {
			if len(chunk.Embedding) == 0 {
				continue
			}
			batch.Queue(
				`INSERT INTO `+tableName+` (document_id, owner_id, chunk_index, embedding) VALUES ($1, $2, $3, $4::vector)`,
				documentID, ownerID, chunk.Index, pgvector.NewVector(chunk.Embedding),
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert vectors: %w", err)
		}
		return nil
	})
}

// DeleteDocument drops the embeddings of a removed document.
func (i *Index) DeleteDocument(ctx context.Context, documentID int64) error {
	if _, err := i.pool.Exec(ctx, `DELETE FROM `+tableName+` WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// TopSimilar returns the nearest chunk by cosine distance among the owner's
// documents created before beforeID, when its similarity reaches minScore.
// beforeID <= 0 searches every document of the owner.
func (i *Index) TopSimilar(ctx context.Context, ownerID int64, embedding []float32, beforeID int64, minScore float64) (documents.Match, bool, error) {
	if len(embedding) == 0 {
		return documents.Match{}, false, nil
	}
	if len(embedding) != i.dimensions {
		return documents.Match{}, false, fmt.Errorf("query: %w (got %d, want %d)", ErrDimensionMismatch, len(embedding), i.dimensions)
	}
	vec := pgvector.NewVector(embedding)
	var match documents.Match
	err := i.pool.QueryRow(ctx,
		`SELECT document_id, 1 - (embedding <=> $1::vector) AS score
         FROM `+tableName+`
         WHERE owner_id = $2 AND ($3 <= 0 OR document_id < $3)
         ORDER BY embedding <=> $1::vector, document_id
         LIMIT 1`,
		vec, ownerID, beforeID,
	).Scan(&match.DocumentID, &match.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return documents.Match{}, false, nil
	}
	if err != nil {
		return documents.Match{}, false, fmt.Errorf("pgvector similarity: %w", err)
	}
	if match.Score < minScore {
		return documents.Match{}, false, nil
	}
	return match, true, nil
}
