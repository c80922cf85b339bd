// Package services defines shared utilities consumed by the ingestion pipeline
// and its external collaborators (OCR, analysis, archival PDF, embeddings).
//
// Key responsibilities:
//   - Context helpers that stamp document IDs, owner IDs, step names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper; FailureMessage turns a
//     wrapped error into the text persisted on a failed document.
//
// Use these helpers when wiring new collaborators so error handling and
// observability stay uniform across the pipeline.
package services
