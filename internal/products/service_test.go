package products

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
)

func newCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	schema := []string{
		`CREATE TABLE products (
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
		`CREATE TABLE features (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  key TEXT NOT NULL UNIQUE,
  description TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE product_features (
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
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return gdb
}

func newCatalogService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := newCatalogTestDB(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(gdb)})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, gdb
}

func seedProduct(t *testing.T, gdb *gorm.DB, key string, active bool) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:       uuid.New(),
		Key:      key,
		Name:     key,
		Price:    19900,
		Currency: "INR",
		Active:   active,
	}
	if err := gdb.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func TestFindActiveByKey(t *testing.T) {
	svc, gdb := newCatalogService(t)
	ctx := context.Background()
	seedProduct(t, gdb, "PRO_MONTHLY", true)
	seedProduct(t, gdb, "LEGACY_ANNUAL", false)

	product, err := svc.FindActiveByKey(ctx, "  PRO_MONTHLY ")
	if err != nil {
		t.Fatalf("expected product, got %v", err)
	}
	if product.Key != "PRO_MONTHLY" {
		t.Fatalf("unexpected product %q", product.Key)
	}

	for name, key := range map[string]string{
		"unknown":  "NOPE",
		"inactive": "LEGACY_ANNUAL",
		"empty":    "",
	} {
		if _, err := svc.FindActiveByKey(ctx, key); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidProduct {
			t.Fatalf("%s: expected invalid product code, got %v", name, err)
		}
	}
}

func TestCreateNormalizesKeyAndCurrency(t *testing.T) {
	svc, _ := newCatalogService(t)

	product, err := svc.Create(context.Background(), CreateProductInput{
		Key:      " team_monthly ",
		Name:     " Team ",
		Price:    49900,
		Currency: "inr",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if product.Key != "TEAM_MONTHLY" || product.Currency != "INR" || product.Name != "Team" {
		t.Fatalf("normalization failed: %+v", product)
	}
	if !product.Active {
		t.Fatal("new products must start active")
	}
}

func TestDeactivateHidesFromActiveList(t *testing.T) {
	svc, gdb := newCatalogService(t)
	ctx := context.Background()
	product := seedProduct(t, gdb, "PRO_MONTHLY", true)
	seedProduct(t, gdb, "TEAM_MONTHLY", true)

	if _, err := svc.Deactivate(ctx, product.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].Key != "TEAM_MONTHLY" {
		t.Fatalf("expected only TEAM_MONTHLY active, got %+v", active)
	}
	all, err := svc.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 products total, got %d", len(all))
	}

	if _, err := svc.Deactivate(ctx, uuid.New()); err == nil {
		t.Fatal("expected not found for unknown product")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found code, got %v", err)
	}
}

func TestSetFeatureUpsertsBinding(t *testing.T) {
	svc, gdb := newCatalogService(t)
	ctx := context.Background()
	product := seedProduct(t, gdb, "PRO_MONTHLY", true)

	if err := svc.SetFeature(ctx, product.ID, SetFeatureInput{
		FeatureKey: "max_plans",
		Value:      json.RawMessage(`{"limit":10}`),
	}); err != nil {
		t.Fatalf("set feature: %v", err)
	}
	if err := svc.SetFeature(ctx, product.ID, SetFeatureInput{
		FeatureKey: "MAX_PLANS",
		Value:      json.RawMessage(`{"limit":25}`),
	}); err != nil {
		t.Fatalf("update feature: %v", err)
	}

	var bindings []models.ProductFeature
	if err := gdb.Where("product_id = ?", product.ID).Find(&bindings).Error; err != nil {
		t.Fatalf("load bindings: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("expected a single binding after upsert, got %d", len(bindings))
	}
	if string(bindings[0].Value) != `{"limit":25}` {
		t.Fatalf("binding value not updated: %s", bindings[0].Value)
	}

	var features []models.Feature
	if err := gdb.Find(&features).Error; err != nil {
		t.Fatalf("load features: %v", err)
	}
	if len(features) != 1 || features[0].Key != "MAX_PLANS" {
		t.Fatalf("feature registry should hold one uppercased key, got %+v", features)
	}
}

func TestRemoveFeatureKeepsRegistryEntry(t *testing.T) {
	svc, gdb := newCatalogService(t)
	ctx := context.Background()
	product := seedProduct(t, gdb, "PRO_MONTHLY", true)

	if err := svc.SetFeature(ctx, product.ID, SetFeatureInput{FeatureKey: "AI_PLAN"}); err != nil {
		t.Fatalf("set feature: %v", err)
	}
	feature, err := svc.repo.FindFeatureByKey(ctx, "AI_PLAN")
	if err != nil {
		t.Fatalf("load feature: %v", err)
	}

	if err := svc.RemoveFeature(ctx, product.ID, feature.ID); err != nil {
		t.Fatalf("remove feature: %v", err)
	}

	var count int64
	if err := gdb.Model(&models.ProductFeature{}).Where("product_id = ?", product.ID).Count(&count).Error; err != nil {
		t.Fatalf("count bindings: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected binding removed, found %d", count)
	}
	if _, err := svc.repo.FindFeatureByKey(ctx, "AI_PLAN"); err != nil {
		t.Fatalf("feature definition should survive detach: %v", err)
	}
}
