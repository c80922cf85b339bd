// Package ingest drives uploaded documents through the processing pipeline.
//
// The Orchestrator is the per-document state machine:
//
//	PENDING -> PROCESSING -> hash -> preprocess -> analyze -> storage_year
//	        -> archival_pdf -> placement -> embeddings -> duplicates
//	        -> COMPLETED | deleted (exact duplicate) | FAILED
//
// Every step persists the document before the next one starts, so a crash
// leaves the record at its last committed step with status PROCESSING and
// re-running the pipeline is safe. Preprocessing, text extraction, the
// archival PDF and embeddings fall back and continue on failure; a missing
// file, a failed placement or a store error marks the document FAILED and
// keeps its files for inspection.
//
// The Dispatcher runs jobs on a fixed pool of workers and refuses a second
// job for a document that is already queued or running. Service ties the two
// together with upload intake, reprocessing and startup recovery. There is
// no durable job queue: jobs lost to a restart are found again by
// RecoverPending because their records are still PENDING or PROCESSING.
package ingest
