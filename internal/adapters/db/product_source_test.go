package db_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/catalog-be/internal/adapters/db"
	"github.com/ammerola/catalog-be/test/helpers"
)

var productRowColumns = []string{
	"id", "title", "description", "brand", "category", "color",
	"sale_price", "list_price", "sizes", "image_link", "availability",
}

func TestProductSource_Load(t *testing.T) {
	tests := []struct {
		name       string
		setupMock  func(mock sqlmock.Sqlmock)
		wantIDs    []int
		wantErr    bool
		errMessage string
	}{
		{
			name: "returns_products_in_catalog_order",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(productRowColumns).
					AddRow(1, "Red Shoe", "", "Acme", "Shoes", "Red", "59.99", "79.99", "S,M", "", "in stock").
					AddRow(2, "Blue Hat", "", "Northwind", "Hats", "Blue", "19.99", "24.99", "M,L", "", "in stock")
				mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, brand, category, color, sale_price, list_price, sizes, image_link, availability FROM products ORDER BY position ASC, id ASC")).
					WillReturnRows(rows)
			},
			wantIDs: []int{1, 2},
		},
		{
			name: "empty_table_returns_empty_slice",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM products").
					WillReturnRows(sqlmock.NewRows(productRowColumns))
			},
			wantIDs: []int{},
		},
		{
			name: "query_error_is_wrapped",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM products").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:    true,
			errMessage: "failed to query products",
		},
		{
			name: "scan_error_is_wrapped",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(productRowColumns).
					AddRow("not-an-int", "Red Shoe", "", "", "", "", "", "", "", "", "")
				mock.ExpectQuery("SELECT (.+) FROM products").WillReturnRows(rows)
			},
			wantErr:    true,
			errMessage: "failed to scan product",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, sqlDB := helpers.SetupMockDB(t)
			tt.setupMock(mock)

			source := db.NewProductSource(sqlDB, helpers.TestLogger())
			products, err := source.Load(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMessage)
			} else {
				require.NoError(t, err)
				ids := make([]int, 0, len(products))
				for _, p := range products {
					ids = append(ids, p.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestProductSource_Load_MapsColumns(t *testing.T) {
	mock, sqlDB := helpers.SetupMockDB(t)
	rows := sqlmock.NewRows(productRowColumns).
		AddRow(7, "Trail Runner", "Light shoe", "Acme", "Shoes", "Black", "89.99", "119.99", "S, M", "https://cdn/7.jpg", "in stock")
	mock.ExpectQuery("SELECT (.+) FROM products").WillReturnRows(rows)

	products, err := db.NewProductSource(sqlDB, helpers.TestLogger()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, 7, p.ID)
	assert.Equal(t, "Trail Runner", p.Title)
	assert.Equal(t, "Light shoe", p.Description)
	assert.Equal(t, "89.99", p.SalePrice)
	assert.Equal(t, []string{"S", "M"}, p.SizeTokens())
	assert.Equal(t, "https://cdn/7.jpg", p.ImageLink)
}

func TestProductSource_Count(t *testing.T) {
	mock, sqlDB := helpers.SetupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := db.NewProductSource(sqlDB, helpers.TestLogger()).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductSource_ReplaceAll(t *testing.T) {
	products := helpers.SampleProducts()

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   bool
	}{
		{
			name: "deletes_and_inserts_in_transaction",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products")).
					WillReturnResult(sqlmock.NewResult(0, 5))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products (position,id,title,description,brand,category,color,sale_price,list_price,sizes,image_link,availability) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12),($13,")).
					WithArgs(
						0, 1, "Red Shoe", sqlmock.AnyArg(), "Acme", "Shoes", "Red", "59.99", "79.99", "S,M", "", "in stock",
						1, 2, "Blue Hat", sqlmock.AnyArg(), "Northwind", "Hats", "Blue", "19.99", "24.99", "M,L", "", "in stock",
					).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectCommit()
			},
		},
		{
			name: "insert_failure_rolls_back",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("DELETE FROM products").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO products").WillReturnError(errors.New("duplicate key"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name: "delete_failure_rolls_back",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("DELETE FROM products").WillReturnError(errors.New("permission denied"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, sqlDB := helpers.SetupMockDB(t)
			tt.setupMock(mock)

			err := db.NewProductSource(sqlDB, helpers.TestLogger()).ReplaceAll(context.Background(), products)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestProductSource_Name(t *testing.T) {
	_, sqlDB := helpers.SetupMockDB(t)
	assert.Equal(t, "postgres", db.NewProductSource(sqlDB, helpers.TestLogger()).Name())
}
