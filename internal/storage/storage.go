// Package storage persists finished article records. File backends write
// JSON, JSONL, or CSV; the mongodb backend inserts records into a
// collection. All backends accept records one at a time so emission order
// is preserved on disk.
package storage

import (
	"fmt"
	"log/slog"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/types"
)

// Storage is the interface for all record sinks.
type Storage interface {
	// Store persists one record.
	Store(rec *types.ArticleRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New creates the backend selected by cfg.Type.
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Type {
	case "json", "jsonl", "csv":
		return NewFileStorage(cfg.Type, cfg.OutputPath, logger)
	case "mongodb":
		return NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
