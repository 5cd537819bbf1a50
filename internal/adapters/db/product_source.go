// internal/adapters/db/product_source.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

const insertBatchSize = 500

var productColumns = []string{
	"id", "title", "description", "brand", "category", "color",
	"sale_price", "list_price", "sizes", "image_link", "availability",
}

// ProductSource reads the catalog from the products table
type ProductSource struct {
	db     *sql.DB
	psql   squirrel.StatementBuilderType
	logger *slog.Logger
}

var _ ports.CatalogSource = (*ProductSource)(nil)

// NewProductSource creates a catalog source backed by PostgreSQL
func NewProductSource(db *sql.DB, logger *slog.Logger) *ProductSource {
	return &ProductSource{
		db:     db,
		psql:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger: logger.With(slog.String("source", "postgres")),
	}
}

// Name identifies the source in logs and stats
func (s *ProductSource) Name() string {
	return "postgres"
}

// Load returns every product in catalog order
func (s *ProductSource) Load(ctx context.Context) ([]domain.Product, error) {
	query, args, err := s.psql.
		Select(productColumns...).
		From("products").
		OrderBy("position ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 256)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.Brand, &p.Category, &p.Color,
			&p.SalePrice, &p.ListPrice, &p.Sizes, &p.ImageLink, &p.Availability,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	s.logger.DebugContext(ctx, "products loaded", slog.Int("count", len(products)))
	return products, nil
}

// Count returns the number of stored products
func (s *ProductSource) Count(ctx context.Context) (int, error) {
	query, args, err := s.psql.Select("COUNT(*)").From("products").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// ReplaceAll swaps the stored catalog for products in a single transaction.
// Slice order becomes catalog order.
func (s *ProductSource) ReplaceAll(ctx context.Context, products []domain.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := s.replaceAll(ctx, tx, products); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %v, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "catalog replaced", slog.Int("count", len(products)))
	return nil
}

func (s *ProductSource) replaceAll(ctx context.Context, tx *sql.Tx, products []domain.Product) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}

	for start := 0; start < len(products); start += insertBatchSize {
		end := min(start+insertBatchSize, len(products))

		insert := s.psql.Insert("products").Columns(append([]string{"position"}, productColumns...)...)
		for i := start; i < end; i++ {
			p := products[i]
			insert = insert.Values(i,
				p.ID, p.Title, p.Description, p.Brand, p.Category, p.Color,
				p.SalePrice, p.ListPrice, p.Sizes, p.ImageLink, p.Availability,
			)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert products: %w", err)
		}
	}
	return nil
}
