package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/eventpass-backend/pkg/migrate"
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

func TestCheckoutMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_checkout_tables")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_counters",
		"PRIMARY KEY (event_id, item_type, item_id)",
		"CHECK (reserved_units >= 0)",
		"CREATE TABLE IF NOT EXISTS checkout_snapshot_lines",
		"state snapshot_state_enum NOT NULL DEFAULT 'pending'",
		"CONSTRAINT payment_intent_records_external_handle_key UNIQUE (external_handle)",
		"CONSTRAINT payment_intent_records_checkout_id_key UNIQUE (checkout_id)",
		"CONSTRAINT confirmed_payments_external_handle_key UNIQUE (external_handle)",
		"DROP TABLE IF EXISTS confirmed_payments",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationDedupesPerAggregate(t *testing.T) {
	content := readMigration(t, "create_outbox_tables")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate",
		"ON outbox_events (event_type, aggregate_type, aggregate_id)",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"DROP TABLE IF EXISTS outbox_events",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEnumMigrationMatchesItemTypes(t *testing.T) {
	content := readMigration(t, "create_pipeline_enums")
	for _, value := range []string{"'ticket'", "'addon'", "'package'", "'slot_pricing'", "'appointment'", "'needs_review'", "'payment_orphaned'"} {
		if !strings.Contains(content, value) {
			t.Errorf("missing enum value %s", value)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Venue Holds")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_venue_holds.sql") {
		t.Fatalf("unexpected migration path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "  !!  "); err == nil {
		t.Fatalf("expected error for empty sanitized name")
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Migrations()); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) != len(onDisk) || len(embedded) == 0 {
		t.Fatalf("embedded %d migrations, disk has %d", len(embedded), len(onDisk))
	}
}

func TestValidateFSRejects(t *testing.T) {
	valid := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name": {"add_holds.sql": {Data: []byte(valid)}},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte(valid)},
			"20260301090000_b.sql": {Data: []byte(valid)},
		},
		"missing down":     {"20260301090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"down before up":   {"20260301090000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"unbalanced block": {"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")}},
	}
	for name, fsys := range cases {
		if err := migrate.ValidateFS(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	ok := fstest.MapFS{"20260301090000_a.sql": {Data: []byte(valid)}, "README.md": {Data: []byte("x")}}
	if err := migrate.ValidateFS(ok); err != nil {
		t.Fatalf("valid fs rejected: %v", err)
	}
}
