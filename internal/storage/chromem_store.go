package storage

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"docqa/internal/embeddings"
	apperrors "docqa/internal/errors"
	"docqa/internal/models"
)

// registryCollection holds collection-level metadata, which chromem-go does
// not expose on its own collections. Each entry's ID is a collection name.
const registryCollection = "collection_registry"

// ChromemStore implements Store on the embedded chromem-go database: pure
// Go, no external service, optional gob persistence.
type ChromemStore struct {
	db     *chromem.DB
	logger *zap.Logger
}

// NewChromemStore creates a chromem-backed collection store. An empty path
// selects a purely in-memory database.
func NewChromemStore(path string, compress bool, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	return &ChromemStore{db: db, logger: logger}, nil
}

// embeddingFunc satisfies chromem's required embedder. All documents carry
// precomputed embeddings, so this only runs for registry entries, where the
// deterministic hash vector is sufficient.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return embeddings.HashVector(text), nil
	}
}

// ListCollections returns all collection names, hiding the registry.
func (s *ChromemStore) ListCollections(_ context.Context) ([]string, error) {
	all := s.db.ListCollections()
	names := make([]string, 0, len(all))
	for name := range all {
		if name == registryCollection {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// GetOrCreateCollection fetches or creates a collection, recording its
// metadata in the registry on first creation.
func (s *ChromemStore) GetOrCreateCollection(ctx context.Context, name string, meta models.CollectionMeta) (models.CollectionInfo, error) {
	if name == "" {
		return models.CollectionInfo{}, apperrors.InvalidInput("collection name is required")
	}
	if name == registryCollection {
		return models.CollectionInfo{}, apperrors.InvalidInput("collection name %q is reserved", name)
	}

	existing := s.db.GetCollection(name, s.embeddingFunc())
	if existing == nil {
		if _, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc()); err != nil {
			return models.CollectionInfo{}, fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		if err := s.writeRegistryEntry(ctx, name, meta); err != nil {
			return models.CollectionInfo{}, err
		}
	}

	return s.GetCollectionInfo(ctx, name)
}

func (s *ChromemStore) writeRegistryEntry(ctx context.Context, name string, meta models.CollectionMeta) error {
	registry, err := s.db.GetOrCreateCollection(registryCollection, nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("failed to open collection registry: %w", err)
	}

	entry := chromem.Document{
		ID:        name,
		Content:   name,
		Metadata:  toStringMap(meta.ToMap()),
		Embedding: embeddings.HashVector(name),
	}
	if err := registry.AddDocuments(ctx, []chromem.Document{entry}, 1); err != nil {
		return fmt.Errorf("failed to register collection %s: %w", name, err)
	}
	return nil
}

// GetCollectionInfo returns a collection's metadata and document count.
// Collections created by external writers may have no registry entry; they
// are reported with empty metadata rather than an error.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, name string) (models.CollectionInfo, error) {
	col := s.db.GetCollection(name, s.embeddingFunc())
	if col == nil {
		return models.CollectionInfo{}, apperrors.NotFound("collection", name)
	}

	info := models.CollectionInfo{Name: name, Count: col.Count()}

	if registry := s.db.GetCollection(registryCollection, s.embeddingFunc()); registry != nil {
		if entry, err := registry.GetByID(ctx, name); err == nil {
			info.Metadata = models.CollectionMetaFromMap(fromStringMap(entry.Metadata))
		}
	}
	return info, nil
}

// Count returns the number of documents in a collection.
func (s *ChromemStore) Count(_ context.Context, collection string) (int, error) {
	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		return 0, apperrors.NotFound("collection", collection)
	}
	return col.Count(), nil
}

// AddDocuments inserts a document batch, creating the collection when
// needed. Embeddings must be precomputed by the caller.
func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, docs []models.Document) error {
	if len(docs) == 0 {
		return apperrors.InvalidInput("documents are required")
	}

	if _, err := s.GetOrCreateCollection(ctx, collection, models.NewCollectionMeta(collection, "")); err != nil {
		return err
	}

	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		return apperrors.NotFound("collection", collection)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Metadata:  toStringMap(doc.Metadata.ToMap()),
			Embedding: doc.Embedding,
		}
	}

	// Concurrency of 1: embeddings are already computed.
	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("failed to add documents to %s: %w", collection, err)
	}

	s.logger.Debug("added documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Query performs nearest-neighbor search within one collection. chromem
// reports cosine similarity; it is converted to a distance so that lower
// remains better across backends.
func (s *ChromemStore) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		return nil, apperrors.NotFound("collection", collection)
	}

	// chromem rejects nResults above the document count.
	count := col.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Text:     r.Content,
			Distance: 1 - r.Similarity,
			Metadata: fromStringMap(r.Metadata),
		}
	}
	return matches, nil
}

// Close is a no-op; chromem persists incrementally.
func (s *ChromemStore) Close() error {
	return nil
}

func toStringMap(m map[string]any) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = models.ScalarString(v)
	}
	return out
}

func fromStringMap(m map[string]string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Store = (*ChromemStore)(nil)
