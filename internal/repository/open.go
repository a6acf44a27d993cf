package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"storefront-api/internal/config"

	"go.uber.org/zap"
)

// Open creates the RangeStore selected by cfg.Type.
func Open(cfg config.StoreConfig, logger *zap.Logger) (RangeStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Type {
	case "mongodb", "mongo":
		return NewMongoDBRangeStore(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	case "postgres", "postgresql":
		return NewPostgresRangeStore(cfg.PostgresDSN())
	case "mysql":
		return NewMySQLRangeStore(cfg.MySQLDSN())
	case "memory":
		logger.Warn("memory_store_selected", zap.String("note", "data is lost on restart"))
		return NewMemoryRangeStore(), nil
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return NewSQLiteRangeStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}
