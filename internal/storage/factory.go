package storage

import (
	"fmt"

	"go.uber.org/zap"

	"docqa/internal/config"
)

// NewStore constructs the configured store backend.
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Storage.Path, logger)
	case "chromem":
		return NewChromemStore(cfg.Storage.ChromemPath, cfg.Storage.Compress, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
