package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ammerola/catalog-be/internal/adapters"
	"github.com/ammerola/catalog-be/internal/adapters/catalogfile"
	"github.com/ammerola/catalog-be/internal/adapters/db"
	"github.com/ammerola/catalog-be/internal/adapters/storage"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/pkg/config"
	"github.com/ammerola/catalog-be/internal/pkg/logger"
)

const (
	targetPostgres = "postgres"
	targetS3       = "s3"
	targetFile     = "file"
)

func main() {
	var (
		file     = flag.String("file", "", "Catalog to seed from (.json array or .xlsx export)")
		generate = flag.Int("generate", 0, "Generate N synthetic products instead of reading -file")
		seed     = flag.Uint64("seed", 1, "Random seed for -generate")
		target   = flag.String("target", targetPostgres, "Where to write the catalog (postgres, s3, file)")
		out      = flag.String("out", "data/products.json", "Output path for -target=file")
		strict   = flag.Bool("strict", false, "Fail when any product is invalid instead of skipping it")
		logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		dryRun   = flag.Bool("dry-run", false, "Validate and summarize without writing anything")
	)
	flag.Parse()

	slogger := logger.SetupLogger(*logLevel, "text").Logger

	if (*file == "") == (*generate == 0) {
		fmt.Fprintln(os.Stderr, "exactly one of -file or -generate is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var (
		products []domain.Product
		err      error
	)
	if *generate > 0 {
		products = GenerateProducts(*generate, *seed)
	} else {
		products, err = readCatalog(ctx, *file, slogger)
		if err != nil {
			slogger.Error("failed to read catalog", slog.String("file", *file), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	valid, rejected := ValidateProducts(products)
	for _, r := range rejected {
		fmt.Printf("INVALID: position %d: %s\n", r.Position, r.Reason)
	}
	if len(rejected) > 0 && *strict {
		slogger.Error("catalog has invalid products", slog.Int("invalid", len(rejected)))
		os.Exit(1)
	}

	if !*dryRun {
		if err := write(ctx, *target, *out, valid, slogger); err != nil {
			slogger.Error("failed to write catalog",
				slog.String("target", *target),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	printSummary(valid, rejected, *target, *dryRun)

	slogger.Info("seed operation completed",
		slog.String("target", *target),
		slog.Int("products", len(valid)),
		slog.Int("invalid", len(rejected)))
}

func readCatalog(ctx context.Context, path string, logger *slog.Logger) ([]domain.Product, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path)
	}
	return catalogfile.New(path, 0, logger).Load(ctx)
}

func write(ctx context.Context, target, out string, products []domain.Product, logger *slog.Logger) error {
	switch target {
	case targetFile:
		data, err := json.MarshalIndent(products, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		return os.WriteFile(out, data, 0o644)

	case targetS3, targetPostgres:
		cfg, err := config.Load(logger)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		sm, err := config.NewSecretsManager(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := cfg.ApplySecrets(ctx, sm); err != nil {
			return err
		}

		if target == targetS3 {
			return writeS3(ctx, cfg, products, logger)
		}
		return writePostgres(ctx, cfg, products, logger)

	default:
		return fmt.Errorf("unknown target %q", target)
	}
}

func writeS3(ctx context.Context, cfg *config.Config, products []domain.Product, logger *slog.Logger) error {
	source, err := storage.NewS3Source(ctx, adapters.S3ConfigFromApp(cfg), logger)
	if err != nil {
		return err
	}
	if err := source.EnsureBucket(ctx); err != nil {
		return err
	}
	location, err := source.Upload(ctx, products)
	if err != nil {
		return err
	}
	fmt.Printf("UPLOADED: %s\n", location)
	return nil
}

func writePostgres(ctx context.Context, cfg *config.Config, products []domain.Product, logger *slog.Logger) error {
	dbConfig := db.ConfigFromApp(cfg)
	if err := db.RunMigrationsWithRetry(ctx, &db.MigrationConfig{DatabaseURL: dbConfig.URL()}, logger, 3); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewDatabase(ctx, dbConfig, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	return db.NewProductSource(database.SQL(), logger).ReplaceAll(ctx, products)
}

func printSummary(valid []domain.Product, rejected []Rejection, target string, dryRun bool) {
	stats := summarize(valid)

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("CATALOG SEED SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Target:            %s\n", target)
	fmt.Printf("Products written:  %d\n", len(valid))
	fmt.Printf("Invalid skipped:   %d\n", len(rejected))
	fmt.Printf("Without sizes:     %d\n", stats.withoutSizes)
	fmt.Printf("Distinct sizes:    %s\n", strings.Join(stats.sizes, ", "))
	fmt.Printf("Distinct brands:   %d\n", stats.brands)

	if dryRun {
		fmt.Println("\n[DRY RUN] Nothing was written")
	}
}
