package migrate

import (
	"context"
	"testing"

	"pathway/internal/db"
)

func TestMigrateCreatesSchema(t *testing.T) {
	conn, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if v, err := Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh database version %d (err=%v), want 0", v, err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v < 1 {
		t.Fatalf("version %d, want >= 1", v)
	}
	for _, table := range []string{"profiles", "recommendations", "events", "api_keys"} {
		var n int
		err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil || n != 1 {
			t.Fatalf("table %s missing (err=%v)", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	before, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	after, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if after != before {
		t.Fatalf("version moved from %d to %d on a no-op run", before, after)
	}
}

func TestMigrationLedgerRecordsSteps(t *testing.T) {
	conn, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rows, err := conn.QueryContext(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	defer rows.Close()
	prev := 0
	for rows.Next() {
		var version int
		var name, appliedAt string
		if err := rows.Scan(&version, &name, &appliedAt); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if version <= prev {
			t.Fatalf("ledger out of order at version %d", version)
		}
		if name == "" || appliedAt == "" {
			t.Fatalf("ledger row %d missing name or timestamp", version)
		}
		prev = version
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if prev == 0 {
		t.Fatalf("empty ledger after migrate")
	}
}
