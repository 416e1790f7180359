package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/kitsuneprints/storefront-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestBundledMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Source()); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	bundled, err := fs.Glob(migrate.Source(), "*.sql")
	if err != nil {
		t.Fatalf("glob bundled: %v", err)
	}
	if len(bundled) != len(onDisk) {
		t.Fatalf("expected %d bundled migrations, got %d", len(onDisk), len(bundled))
	}
}

func TestValidateRejectsBrokenSources(t *testing.T) {
	up := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"empty":        {},
		"bad name":     {"add_things.sql": {Data: []byte(up)}},
		"missing down": {"20260301090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"duplicate": {
			"20260301090000_a.sql": {Data: []byte(up)},
			"20260301090000_b.sql": {Data: []byte(up)},
		},
	}
	for name, fsys := range cases {
		if err := migrate.Validate(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestOrdersMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "create_orders_tables")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CONSTRAINT orders_order_number_key UNIQUE (order_number)",
		"total = subtotal + shipping_cost - discount_amount",
		"reminder_sent_at timestamptz NULL",
		"coupon_redeemed_at timestamptz NULL",
		"CREATE INDEX IF NOT EXISTS idx_orders_sweep",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE TABLE IF NOT EXISTS payment_verifications",
		"verified boolean NULL",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCatalogMigrationContainsSearchColumns(t *testing.T) {
	content := readMigration(t, "create_catalog_tables")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS categories",
		"CREATE TABLE IF NOT EXISTS products",
		"name_key text NOT NULL",
		"search_text text NOT NULL DEFAULT ''",
		"sizes jsonb NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_products_search_text_trgm",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestReviewsMigrationEnforcesOneReviewPerOrder(t *testing.T) {
	content := readMigration(t, "create_reviews_table")
	if !strings.Contains(content, "UNIQUE (product_id, customer_email, order_number)") {
		t.Fatalf("reviews migration must enforce one review per product, email and order")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Gift Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_gift_notes.sql") {
		t.Fatalf("unexpected migration path %s", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := migrate.CreateSQLMigration(t.TempDir(), " !! "); err == nil {
		t.Fatal("expected empty slug to fail")
	}
}
