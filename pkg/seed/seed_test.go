package seed

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/logger"
)

func setupSeedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:seed_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  key TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  price INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'INR',
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS features (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  key TEXT NOT NULL UNIQUE,
  description TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS product_features (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  product_id TEXT NOT NULL,
  feature_id TEXT NOT NULL,
  value TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (product_id, feature_id)
);`,
	}
	for _, stmt := range schema {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

func TestCatalogSeedsProductsAndFeatures(t *testing.T) {
	gdb := setupSeedTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ctx := context.Background()

	require.NoError(t, Catalog(ctx, gdb, logg))

	var products []models.Product
	require.NoError(t, gdb.Order("key").Find(&products).Error)
	require.Len(t, products, 2)
	require.Equal(t, "PRO_MONTHLY", products[0].Key)
	require.Equal(t, int64(19900), products[0].Price)
	require.Equal(t, "TEAM_MONTHLY", products[1].Key)
	require.Equal(t, int64(49900), products[1].Price)

	var featureCount int64
	require.NoError(t, gdb.Model(&models.Feature{}).Count(&featureCount).Error)
	require.EqualValues(t, 4, featureCount)

	var pfCount int64
	require.NoError(t, gdb.Model(&models.ProductFeature{}).Count(&pfCount).Error)
	require.EqualValues(t, 3, pfCount)
}

func TestCatalogIsIdempotentAndPreservesEdits(t *testing.T) {
	gdb := setupSeedTestDB(t)
	ctx := context.Background()

	require.NoError(t, Catalog(ctx, gdb, nil))

	// CMS edits to price must survive a reseed.
	require.NoError(t, gdb.Model(&models.Product{}).
		Where("key = ?", "PRO_MONTHLY").
		Update("price", 24900).Error)

	require.NoError(t, Catalog(ctx, gdb, nil))

	var pro models.Product
	require.NoError(t, gdb.Where("key = ?", "PRO_MONTHLY").First(&pro).Error)
	require.Equal(t, int64(24900), pro.Price)

	var pfCount int64
	require.NoError(t, gdb.Model(&models.ProductFeature{}).Count(&pfCount).Error)
	require.EqualValues(t, 3, pfCount)
}
