// internal/adapters/sources.go
package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ammerola/catalog-be/internal/adapters/catalogfile"
	"github.com/ammerola/catalog-be/internal/adapters/db"
	"github.com/ammerola/catalog-be/internal/adapters/storage"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/pkg/config"
)

// NewCatalogSource builds the catalog source selected by cfg.Catalog.Source.
// The returned cleanup func releases any connections the source holds.
func NewCatalogSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.CatalogSource, func(), error) {
	noop := func() {}

	switch cfg.Catalog.Source {
	case config.SourceFile:
		return catalogfile.New(cfg.Catalog.FilePath, cfg.Catalog.WatchDebounce, logger), noop, nil

	case config.SourceS3:
		source, err := storage.NewS3Source(ctx, S3ConfigFromApp(cfg), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create s3 source: %w", err)
		}
		return source, noop, nil

	case config.SourcePostgres:
		dbConfig := db.ConfigFromApp(cfg)
		if cfg.Database.MigrateOnStart {
			if err := db.RunMigrationsWithRetry(ctx, &db.MigrationConfig{
				DatabaseURL: dbConfig.URL(),
			}, logger, 3); err != nil {
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		database, err := db.NewDatabase(ctx, dbConfig, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db.NewProductSource(database.SQL(), logger), database.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}

// S3ConfigFromApp maps application config onto the S3 source config
func S3ConfigFromApp(cfg *config.Config) *storage.S3Config {
	return &storage.S3Config{
		Region:          cfg.AWS.Region,
		Bucket:          cfg.AWS.S3Bucket,
		Key:             cfg.Catalog.S3Key,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.S3Endpoint,
		UsePathStyle:    cfg.AWS.UsePathStyle,
	}
}
