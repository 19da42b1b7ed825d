package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBillingCatalogMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "*_create_billing_catalog.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS features",
		"CREATE TABLE IF NOT EXISTS product_features",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_products_key",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_product_feature ON product_features (product_id, feature_id)",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS product_features",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders_and_subscriptions.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS user_subscriptions",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_provider_order ON orders (provider_order_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_user_subscriptions_provider_sub ON user_subscriptions (provider_sub_id)",
		"CHECK (amount >= 0)",
		"DROP TABLE IF EXISTS user_subscriptions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
