package contextstore

import (
	"context"
	"fmt"

	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/s3client"
)

// Open builds the backend selected by cfg.Store, wrapped with metrics.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Store, error) {
	switch cfg.Store.Kind {
	case config.StoreSQLite:
		store, err := NewSQLiteStore(ctx, cfg.SQLitePath(), config.DatabaseBusyTimeout)
		if err != nil {
			return nil, err
		}
		return WithMetrics(store, config.StoreSQLite, m), nil

	case config.StoreS3:
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:    cfg.Store.S3Endpoint,
			Region:      cfg.Store.S3Region,
			AccessKeyID: cfg.Store.S3AccessKeyID,
			SecretKey:   cfg.Store.S3SecretKey,
			Bucket:      cfg.Store.S3Bucket,
			PathStyle:   cfg.Store.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		store := NewObjectStore(client, ObjectStoreConfig{
			Prefix:   cfg.Store.S3Prefix,
			Compress: cfg.Store.S3Compress,
			Metrics:  m,
		})
		return WithMetrics(store, config.StoreS3, m), nil

	case config.StoreMemory:
		return WithMetrics(NewMemoryStore(), config.StoreMemory, m), nil

	default:
		return nil, fmt.Errorf("unknown context store %q", cfg.Store.Kind)
	}
}
