// Package storage provides collection store implementations for document
// embeddings. A store is a multi-tenant keyed set of named collections; the
// retrieval core consumes it as a black box.
package storage

import (
	"context"

	"docqa/internal/models"
)

// Match is one nearest-neighbor result within a single collection.
// Distance is lower-is-better and backend-specific (it is only compared
// against distances produced by the same store).
type Match struct {
	ID       string
	Text     string
	Distance float32
	Metadata map[string]any
}

// Store is the collection store consumed by the retrieval core.
//
// Collections are created on first write: GetOrCreateCollection is a no-op
// returning the existing collection when it already exists. Query against an
// unknown collection returns a not-found error; callers in the federation
// path absorb per-collection errors rather than propagating them.
type Store interface {
	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// GetOrCreateCollection fetches a collection, creating it with the
	// given metadata when absent. Existing metadata is never overwritten.
	GetOrCreateCollection(ctx context.Context, name string, meta models.CollectionMeta) (models.CollectionInfo, error)

	// AddDocuments inserts a batch of documents with embeddings into a
	// collection, creating the collection when needed.
	AddDocuments(ctx context.Context, collection string, docs []models.Document) error

	// Query returns the topK nearest documents to the embedding, best
	// first. topK is capped at the collection's document count. All of a
	// collection's documents belong to the collection's owner, so access
	// control operates on whole collections and Query takes no
	// document-level filter.
	Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error)

	// GetCollectionInfo returns a collection's metadata and count.
	GetCollectionInfo(ctx context.Context, name string) (models.CollectionInfo, error)

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases backend resources.
	Close() error
}
