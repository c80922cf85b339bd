// Package textutil provides the text helpers shared by ingestion and archive
// placement: filename stem sanitizing, path segment tokens, overlapping text
// chunks for embeddings, and vector cosine similarity.
package textutil
