// Package embedding turns document text into chunk embeddings.
//
// Vectors come from an HTTP model service (POST {url}/analyzeText with a
// form field "text", answering {"embedding": [...]}). Chunks are always
// written to the SQLite store; when a pgvector index is attached the same
// chunks are mirrored there as well.
package embedding
