package knowledge

import "errors"

// Sentinel errors for knowledge operations.
// These are part of the store's public API and should be checked with errors.Is().
var (
	// ErrNotFound indicates no knowledge item matched the lookup.
	ErrNotFound = errors.New("knowledge item not found")

	// ErrEmptyContent indicates an ingest attempt with no usable content.
	ErrEmptyContent = errors.New("knowledge content is empty")

	// ErrEmptyEmbedding indicates the embedder returned no vector.
	ErrEmptyEmbedding = errors.New("embedder returned empty embedding")
)
