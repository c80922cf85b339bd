// Package documents persists document records and their embedding chunks in
// SQLite.
//
// The Store is the only shared mutable resource of the ingestion pipeline.
// Every method takes a context and runs context-scoped statements so the
// connection returns to the pool on every exit path. Writes retry briefly on
// SQLITE_BUSY because the daemon runs several ingestion workers against one
// WAL database.
//
// Besides CRUD the package answers the read-side questions of the archive
// (years, categories, counts) and the duplicate resolver (hash, metadata and
// embedding lookups). The pgvector subpackage offers an alternative similarity
// backend for large archives.
package documents
