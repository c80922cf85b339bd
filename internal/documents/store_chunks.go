package documents

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"docarchive/internal/textutil"
)

// ReplaceChunks stores the chunks of a document, dropping any previous set.
func (s *Store) ReplaceChunks(ctx context.Context, documentID int64, chunks []Chunk) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin chunk tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
		timestamp := formatTime(s.now())
		for _, chunk := range chunks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO document_chunks (document_id, chunk_index, content, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
				documentID, chunk.Index, chunk.Content, encodeEmbedding(chunk.Embedding), timestamp,
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
			}
		}
		return tx.Commit()
	})
}

// Chunks returns the stored chunks of a document in index order.
func (s *Store) Chunks(ctx context.Context, documentID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, document_id, chunk_index, content, embedding, created_at FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()
	var chunks []Chunk
	for rows.Next() {
		var (
			chunk   Chunk
			blob    []byte
			created string
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content, &blob, &created); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Embedding = decodeEmbedding(blob)
		if ts, err := parseTimeString(created); err == nil {
			chunk.CreatedAt = ts
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// FirstEmbedding returns the embedding of the lowest-index chunk that has one.
func (s *Store) FirstEmbedding(ctx context.Context, documentID int64) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT embedding FROM document_chunks WHERE document_id = ? AND embedding IS NOT NULL ORDER BY chunk_index LIMIT 1`,
		documentID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("first embedding: %w", err)
	}
	vec := decodeEmbedding(blob)
	return vec, len(vec) > 0, nil
}

// TopSimilar scans the chunk embeddings of the owner's documents created
// before beforeID and returns the best cosine match at or above minScore.
// beforeID <= 0 scans every document of the owner.
func (s *Store) TopSimilar(ctx context.Context, ownerID int64, embedding []float32, beforeID int64, minScore float64) (Match, bool, error) {
	if len(embedding) == 0 {
		return Match{}, false, nil
	}
	query, args := olderThan(
		`SELECT c.document_id, c.embedding FROM document_chunks c
         JOIN documents d ON d.id = c.document_id
         WHERE d.owner_id = ? AND c.embedding IS NOT NULL`,
		[]any{ownerID}, "c.document_id", beforeID,
	)
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return Match{}, false, fmt.Errorf("query chunk embeddings: %w", err)
	}
	defer rows.Close()

	var best Match
	found := false
	for rows.Next() {
		var (
			docID int64
			blob  []byte
		)
		if err := rows.Scan(&docID, &blob); err != nil {
			return Match{}, false, fmt.Errorf("scan chunk embedding: %w", err)
		}
		score := textutil.CosineSimilarity(embedding, decodeEmbedding(blob))
		if score < minScore {
			continue
		}
		if !found || score > best.Score || (score == best.Score && docID < best.DocumentID) {
			best = Match{DocumentID: docID, Score: score}
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return Match{}, false, fmt.Errorf("iterate chunk embeddings: %w", err)
	}
	return best, found, nil
}

// Embeddings are stored as little-endian float32 arrays.
func encodeEmbedding(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) []float32 {
	if len(blob) < 4 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
