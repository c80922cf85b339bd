// Package daemon coordinates the long-running docarchive process.
//
// It wraps the ingestion service in a single lifecycle with flock-based
// locking to prevent multiple instances, requeues documents left PENDING or
// PROCESSING by a previous run, and optionally watches an inbox directory:
// files dropped there are uploaded for the configured default owner once they
// have stopped changing, then removed. Files whose upload fails are parked in
// the inbox's failed/ subdirectory.
//
// Keep orchestration logic here: pipeline steps live in package ingest while
// the daemon focuses on startup, shutdown and intake.
package daemon
