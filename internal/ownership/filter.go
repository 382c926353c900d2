// Package ownership decides which collections belong to a requesting owner
// by inspecting collection-level metadata.
package ownership

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/models"
	"docqa/internal/storage"
)

// Filter retains collections whose metadata owner matches a requesting
// owner id.
type Filter struct {
	store  storage.Store
	logger *zap.Logger
}

// NewFilter creates an ownership filter over the given store.
func NewFilter(store storage.Store, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{store: store, logger: logger}
}

// FilterByOwner returns the subset of the named collections owned by
// ownerID, with their metadata. Owner ids arrive as strings or numbers
// across call sites, so both sides are compared in canonical string form.
// A collection whose metadata cannot be fetched is skipped, never fatal.
// Collections without an owner field match no owner.
func (f *Filter) FilterByOwner(ctx context.Context, collections []string, ownerID string) ([]models.CollectionInfo, error) {
	owned := make([]models.CollectionInfo, 0, len(collections))
	want := Canonical(ownerID)

	for _, name := range collections {
		info, err := f.store.GetCollectionInfo(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Debug("skipping collection with unreadable metadata",
				zap.String("collection", name),
				zap.Error(err),
			)
			continue
		}

		if info.Metadata.Owner == "" {
			continue
		}
		if Canonical(info.Metadata.Owner) == want {
			owned = append(owned, info)
		}
	}

	return owned, nil
}

// Canonical normalizes an owner id for comparison: numeric forms collapse
// to their shortest decimal representation so that "42", 42 and "42.0" all
// address the same owner. Non-numeric ids compare as trimmed strings.
func Canonical(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ""
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return trimmed
}
