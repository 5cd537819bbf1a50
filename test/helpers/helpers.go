// test/helpers/helpers.go
package helpers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/catalog-be/internal/adapters/db"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/pkg/config"
)

// TestDB represents a test database instance
type TestDB struct {
	Database *db.Database
	Resource *dockertest.Resource
	Pool     *dockertest.Pool
	Config   *db.Config
}

// TestRedis represents a test Redis instance
type TestRedis struct {
	Client *redis.Client
	Server *miniredis.Miniredis
}

// TestLogger returns a test logger
func TestLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// SetupTestDB starts a PostgreSQL container and applies the products schema
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "Could not connect to Docker")

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=test_catalog",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "Could not start PostgreSQL container")

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Could not purge resource: %s", err)
		}
	})

	dbConfig := &db.Config{
		Host:               "localhost",
		Port:               resource.GetPort("5432/tcp"),
		User:               "test",
		Password:           "test",
		Database:           "test_catalog",
		SSLMode:            "disable",
		MaxConnections:     5,
		MinConnections:     1,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    time.Minute * 30,
		HealthCheckPeriod:  time.Minute,
		ConnectTimeout:     time.Second * 10,
		EnableQueryLogging: testing.Verbose(),
	}

	var database *db.Database
	err = pool.Retry(func() error {
		ctx := context.Background()
		var err error
		database, err = db.NewDatabase(ctx, dbConfig, TestLogger())
		if err != nil {
			return err
		}
		return database.Ping(ctx)
	})
	require.NoError(t, err, "Could not connect to PostgreSQL")
	t.Cleanup(database.Close)

	err = db.RunMigrationsWithRetry(context.Background(), &db.MigrationConfig{
		DatabaseURL: dbConfig.URL(),
	}, TestLogger(), 3)
	require.NoError(t, err, "Could not run migrations")

	return &TestDB{
		Database: database,
		Resource: resource,
		Pool:     pool,
		Config:   dbConfig,
	}
}

// SetupTestRedis creates an in-process Redis for testing
func SetupTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
	})

	return &TestRedis{
		Client: client,
		Server: mr,
	}
}

// SetupMockDB creates a mock database for unit testing
func SetupMockDB(t *testing.T) (sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock DB")

	t.Cleanup(func() {
		db.Close()
	})

	return mock, db
}

// LoadTestConfig returns a test configuration
func LoadTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "test-api",
			Environment: "test",
			Version:     "test",
			LogLevel:    "debug",
			LogFormat:   "text",
			Debug:       true,
		},
		Catalog: config.CatalogConfig{
			Source:       config.SourceFile,
			FilePath:     "products.json",
			WarmOnReload: true,
			WarmPages:    2,
		},
		Database: config.DatabaseConfig{
			Host:           "localhost",
			Port:           "5432",
			User:           "test",
			Password:       "test",
			Name:           "test_catalog",
			SSLMode:        "disable",
			MaxConnections: 10,
			MaxIdleConns:   2,
		},
		Redis: config.RedisConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     "6379",
			DB:       0,
			TTL:      time.Hour,
			PoolSize: 10,
		},
		AWS: config.AWSConfig{
			Region:          "us-east-1",
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			S3Bucket:        "catalog",
			UsePathStyle:    true,
			SecretsProvider: "env",
		},
		Security: config.SecurityConfig{
			RateLimitRequests: 1000,
			RateLimitDuration: time.Minute,
			AllowedOrigins:    []string{"*"},
			SecureHeaders:     false,
			RequestIDHeader:   "X-Request-ID",
		},
		Server: config.ServerConfig{
			Host:          "localhost",
			Port:          "8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  15 * time.Second,
			EnableMetrics: true,
		},
		Browse: config.BrowseConfig{
			RequestTimeout:     5 * time.Second,
			NearMargin:         200,
			FarMargin:          400,
			Threshold:          0.1,
			PollInterval:       10 * time.Millisecond,
			StaleTime:          time.Minute,
			MaxRetainedQueries: 8,
			SearchDebounce:     20 * time.Millisecond,
			ViewportHeight:     800,
			RowHeight:          100,
			Columns:            4,
		},
	}
}

// SampleProducts returns the two-product catalog used across the query tests
func SampleProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Title: "Red Shoe", Description: "Leather running shoe", Brand: "Acme", Category: "Shoes", Color: "Red", SalePrice: "59.99", ListPrice: "79.99", Sizes: "S,M", Availability: "in stock"},
		{ID: 2, Title: "Blue Hat", Description: "Wool winter hat", Brand: "Northwind", Category: "Hats", Color: "Blue", SalePrice: "19.99", ListPrice: "24.99", Sizes: "M,L", Availability: "in stock"},
	}
}

// CreateTestProduct creates a test product
func CreateTestProduct(overrides ...func(*domain.Product)) *domain.Product {
	p := &domain.Product{
		ID:           1,
		Title:        "Test Trail Runner",
		Description:  "Lightweight trail running shoe",
		Brand:        "Acme",
		Category:     "Shoes",
		Color:        "Black",
		SalePrice:    "89.99",
		ListPrice:    "119.99",
		Sizes:        "S,M,L",
		ImageLink:    "https://cdn.example.com/p/1.jpg",
		Availability: "in stock",
	}

	for _, override := range overrides {
		override(p)
	}

	return p
}

// CreateTestProducts creates count products with ids 1..count. Sizes rotate
// through a fixed set and every fifth product declares none.
func CreateTestProducts(count int) []domain.Product {
	products := make([]domain.Product, count)

	brands := []string{"Acme", "Northwind", "Globex", "Initech"}
	colors := []string{"Black", "Red", "Blue", "Green"}
	sizes := []string{"S,M", "M,L", "L,XL", "XS,S"}

	for i := 0; i < count; i++ {
		products[i] = *CreateTestProduct(func(p *domain.Product) {
			p.ID = i + 1
			p.Title = fmt.Sprintf("Test Product %d", i+1)
			p.Brand = brands[i%len(brands)]
			p.Color = colors[i%len(colors)]
			p.SalePrice = fmt.Sprintf("%d.99", 10+i)
			p.ListPrice = fmt.Sprintf("%d.99", 20+i)
			p.Sizes = sizes[i%len(sizes)]
			if i%5 == 4 {
				p.Sizes = ""
			}
			p.ImageLink = fmt.Sprintf("https://cdn.example.com/p/%d.jpg", i+1)
		})
	}

	return products
}

// WriteCatalogFile writes products as a JSON array into dir and returns the path
func WriteCatalogFile(t *testing.T, dir string, products []domain.Product) string {
	t.Helper()

	data, err := json.Marshal(products)
	require.NoError(t, err)

	path := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// TruncateProducts empties the products table
func TruncateProducts(t *testing.T, database *db.Database) {
	t.Helper()

	_, err := database.Pool().Exec(context.Background(), "TRUNCATE TABLE products")
	require.NoError(t, err, "Failed to truncate products")
}

// AssertEventuallyWithTimeout asserts that a condition is met within a timeout
func AssertEventuallyWithTimeout(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("Condition not met within %v: %s", timeout, msg)
}

// CreateTempFile creates a temporary file for testing
func CreateTempFile(t *testing.T, content []byte, extension string) string {
	t.Helper()

	file, err := os.CreateTemp(t.TempDir(), fmt.Sprintf("test-*%s", extension))
	require.NoError(t, err, "Failed to create temp file")

	_, err = file.Write(content)
	require.NoError(t, err, "Failed to write to temp file")
	require.NoError(t, file.Close())

	return file.Name()
}
