package store

import (
	"testing"
)

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 6 {
		t.Errorf("SchemaVersion = %d, want 6", v)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{
		"schema_versions", "memories", "memory_connections",
		"memory_implications", "memory_vectors", "nudges", "nudge_feedback",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestMemoriesConstraints(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO memories (user_id, content, source, source_date, created_at, updated_at)
		VALUES ('u1', 'went running', 'journal', '2026-08-01', 1000, 1000)
	`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO memories (user_id, content, source, source_date, created_at, updated_at)
		VALUES ('u1', 'bad source', 'dream', '2026-08-01', 1000, 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid source, got nil")
	}
}

func TestNudgeTypeConstraint(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO nudges (user_id, entry_date, paragraph_hash, nudge_type, hook, created_at, updated_at)
		VALUES ('u1', '2026-08-01', 'abc', 'prophecy', 'hook', 1000, 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid nudge_type, got nil")
	}
}

// testDB is a helper that creates an in-memory DB for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
