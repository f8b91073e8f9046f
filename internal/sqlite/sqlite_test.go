package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

// newTestStore creates a Store on a fresh temp-dir database file with the
// current schema in place.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store := NewStore(filepath.Join(t.TempDir(), "larder.db"))
	t.Cleanup(func() { store.Close() })

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return store
}

// execAll runs each statement against the store's handle.
func execAll(t *testing.T, store *Store, stmts ...string) {
	t.Helper()

	db, err := store.conn(context.Background())
	if err != nil {
		t.Fatalf("conn failed: %v", err)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q failed: %v", stmt, err)
		}
	}
}

// queryInt runs a single-value query and returns the result as int64.
func queryInt(t *testing.T, store *Store, query string, args ...any) int64 {
	t.Helper()

	db, err := store.conn(context.Background())
	if err != nil {
		t.Fatalf("conn failed: %v", err)
	}
	var n int64
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("query %q failed: %v", query, err)
	}
	return n
}
