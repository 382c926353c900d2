// Package catalog provides collection-level browsing: listings with
// document counts, keyword search over collection metadata and per-owner
// statistics.
package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "docqa/internal/errors"
	"docqa/internal/models"
	"docqa/internal/ownership"
	"docqa/internal/storage"
)

const (
	defaultListLimit   = 50
	defaultSearchLimit = 20
	searchPoolLimit    = 100
)

// Service answers collection-level queries against the store.
type Service struct {
	store  storage.Store
	filter *ownership.Filter
	logger *zap.Logger
}

// NewService creates a catalog service.
func NewService(store storage.Store, filter *ownership.Filter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, filter: filter, logger: logger}
}

// ListAll returns up to limit collections with metadata and counts.
// Collections whose info cannot be fetched are skipped.
func (s *Service) ListAll(ctx context.Context, limit int) ([]models.CollectionInfo, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	names, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, apperrors.Unavailable("collection store", err)
	}
	if len(names) > limit {
		names = names[:limit]
	}

	infos := make([]models.CollectionInfo, 0, len(names))
	for _, name := range names {
		info, err := s.store.GetCollectionInfo(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping unreadable collection",
				zap.String("collection", name),
				zap.Error(err),
			)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ListByOwner returns the owner's collections with metadata and counts.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]models.CollectionInfo, error) {
	names, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, apperrors.Unavailable("collection store", err)
	}
	return s.filter.FilterByOwner(ctx, names, ownerID)
}

// SearchCollections filters collections by a keyword over their name and
// descriptive metadata. An empty owner searches the public pool.
func (s *Service) SearchCollections(ctx context.Context, term, ownerID string, limit int) ([]models.CollectionInfo, error) {
	if strings.TrimSpace(term) == "" {
		return nil, apperrors.InvalidInput("search term is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var pool []models.CollectionInfo
	var err error
	if ownerID != "" {
		pool, err = s.ListByOwner(ctx, ownerID)
	} else {
		pool, err = s.ListAll(ctx, searchPoolLimit)
	}
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(term)
	matched := make([]models.CollectionInfo, 0, len(pool))
	for _, info := range pool {
		if collectionMatches(info, needle) {
			matched = append(matched, info)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

// Stats aggregates document counts across the owner's collections, or all
// collections when the owner is empty.
func (s *Service) Stats(ctx context.Context, ownerID string) (models.CollectionStats, error) {
	var infos []models.CollectionInfo
	var err error
	if ownerID != "" {
		infos, err = s.ListByOwner(ctx, ownerID)
	} else {
		infos, err = s.ListAll(ctx, 0)
	}
	if err != nil {
		return models.CollectionStats{}, err
	}

	stats := models.CollectionStats{
		TotalCollections: len(infos),
		Collections:      infos,
	}
	for _, info := range infos {
		stats.TotalDocuments += info.Count
	}
	return stats, nil
}

func collectionMatches(info models.CollectionInfo, needle string) bool {
	searchable := strings.ToLower(strings.Join([]string{
		info.Name,
		info.Metadata.OriginalFilename,
		info.Metadata.Description,
		info.Metadata.Tags,
	}, " "))
	return strings.Contains(searchable, needle)
}
