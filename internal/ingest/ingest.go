// Package ingest writes text into collections: collection creation with
// defaulted metadata, batched document inserts and fixed-size chunking of
// raw text. PDF extraction happens upstream; this package only ever sees
// text.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"docqa/internal/embeddings"
	apperrors "docqa/internal/errors"
	"docqa/internal/models"
	"docqa/internal/storage"
)

const (
	// batchSize bounds each store write to avoid timeouts on large
	// uploads.
	batchSize = 50

	// DefaultChunkSize is the fixed-size chunk length in runes.
	DefaultChunkSize = 1000
)

// Service ingests documents.
type Service struct {
	store    storage.Store
	embedder embeddings.Provider
	logger   *zap.Logger
}

// NewService creates an ingest service.
func NewService(store storage.Store, embedder embeddings.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embedder: embedder, logger: logger}
}

// CreateCollection creates (or fetches) a collection with defaulted
// metadata.
func (s *Service) CreateCollection(ctx context.Context, name string, rawMeta map[string]any) (models.CollectionInfo, error) {
	if name == "" {
		return models.CollectionInfo{}, apperrors.InvalidInput("collection name is required")
	}

	meta := models.CollectionMetaFromMap(rawMeta)
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if meta.Description == "" {
		meta.Description = "Collection " + name
	}
	if meta.Type == "" {
		meta.Type = "general"
	}

	return s.store.GetOrCreateCollection(ctx, name, meta)
}

// AddDocuments embeds and stores a batch of texts. Metadatas and ids are
// positional and optional; missing entries get defaults and generated ids.
// Returns the number of documents stored.
func (s *Service) AddDocuments(ctx context.Context, collection string, texts []string, metas []map[string]any, ids []string) (int, error) {
	if len(texts) == 0 {
		return 0, apperrors.InvalidInput("documents are required and must be a non-empty array")
	}
	if _, err := s.CreateCollection(ctx, collection, nil); err != nil {
		return 0, err
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, apperrors.Unavailable("embedding provider", err)
	}

	docs := make([]models.Document, len(texts))
	for i, text := range texts {
		var meta models.DocumentMeta
		if i < len(metas) {
			meta = models.DocumentMetaFromMap(metas[i])
		}
		doc := models.NewDocument(text, meta)
		if i < len(ids) && ids[i] != "" {
			doc.ID = ids[i]
		}
		doc.Embedding = vectors[i]
		docs[i] = doc
	}

	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := s.store.AddDocuments(ctx, collection, docs[start:end]); err != nil {
			return start, err
		}
	}

	s.logger.Info("ingested documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return len(docs), nil
}

// ProcessChunks stores pre-chunked text with chunk bookkeeping metadata.
func (s *Service) ProcessChunks(ctx context.Context, collection string, chunks []string, rawMeta map[string]any) (int, error) {
	if len(chunks) == 0 {
		return 0, apperrors.InvalidInput("chunks are required and must be a non-empty array")
	}

	metas := make([]map[string]any, len(chunks))
	for i := range chunks {
		meta := models.DocumentMetaFromMap(rawMeta)
		meta.ChunkIndex = i
		meta.TotalChunks = len(chunks)
		metas[i] = meta.ToMap()
	}
	return s.AddDocuments(ctx, collection, chunks, metas, nil)
}

// ProcessText splits raw text into fixed-size chunks and stores them.
func (s *Service) ProcessText(ctx context.Context, collection, text string, chunkSize int, rawMeta map[string]any) (int, error) {
	chunks := SplitChunks(text, chunkSize)
	if len(chunks) == 0 {
		return 0, apperrors.InvalidInput("text is required")
	}
	return s.ProcessChunks(ctx, collection, chunks, rawMeta)
}

// SplitChunks splits text into fixed-size rune chunks.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
