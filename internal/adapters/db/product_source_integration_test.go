//go:build integration
// +build integration

package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ammerola/catalog-be/internal/adapters/db"
	"github.com/ammerola/catalog-be/test/helpers"
)

type ProductSourceSuite struct {
	suite.Suite
	testDB *helpers.TestDB
	source *db.ProductSource
	ctx    context.Context
}

func (s *ProductSourceSuite) SetupSuite() {
	s.testDB = helpers.SetupTestDB(s.T())
	s.source = db.NewProductSource(s.testDB.Database.SQL(), helpers.TestLogger())
	s.ctx = context.Background()
}

func (s *ProductSourceSuite) SetupTest() {
	helpers.TruncateProducts(s.T(), s.testDB.Database)
}

func (s *ProductSourceSuite) TestReplaceAllThenLoad() {
	products := helpers.CreateTestProducts(1200)

	s.Require().NoError(s.source.ReplaceAll(s.ctx, products))

	loaded, err := s.source.Load(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded, len(products))
	s.Equal(products[0], loaded[0])
	s.Equal(products[len(products)-1], loaded[len(loaded)-1])

	count, err := s.source.Count(s.ctx)
	s.NoError(err)
	s.Equal(1200, count)
}

func (s *ProductSourceSuite) TestReplaceAllKeepsSliceOrder() {
	products := helpers.SampleProducts()
	products[0], products[1] = products[1], products[0]

	s.Require().NoError(s.source.ReplaceAll(s.ctx, products))

	loaded, err := s.source.Load(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int{2, 1}, []int{loaded[0].ID, loaded[1].ID})
}

func (s *ProductSourceSuite) TestReplaceAllOverwrites() {
	s.Require().NoError(s.source.ReplaceAll(s.ctx, helpers.CreateTestProducts(10)))
	s.Require().NoError(s.source.ReplaceAll(s.ctx, helpers.SampleProducts()))

	count, err := s.source.Count(s.ctx)
	s.NoError(err)
	s.Equal(2, count)
}

func (s *ProductSourceSuite) TestHealth() {
	health := s.testDB.Database.Health(s.ctx)
	s.Equal("healthy", health["status"])
}

func TestProductSourceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(ProductSourceSuite))
}
