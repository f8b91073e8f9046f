package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// newLegacyStore seeds a database file shaped like the oldest supported
// schema generation: free-text ingredients, template-linked sections, no
// favorite column, duplicate tags and template names, no indexes.
func newLegacyStore(t *testing.T) *Store {
	t.Helper()

	store := NewStore(filepath.Join(t.TempDir(), "larder.db"))
	t.Cleanup(func() { store.Close() })

	execAll(t, store,
		`CREATE TABLE recipes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			cook_time_minutes INTEGER,
			servings INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted_at INTEGER
		)`,
		`CREATE TABLE recipe_ingredients (
			id TEXT PRIMARY KEY,
			recipe_id TEXT NOT NULL,
			description TEXT NOT NULL
		)`,
		`CREATE TABLE recipe_sections (
			id TEXT PRIMARY KEY,
			recipe_id TEXT NOT NULL,
			template_section_id TEXT,
			content TEXT NOT NULL
		)`,
		`CREATE TABLE templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted_at INTEGER
		)`,
		`CREATE TABLE template_sections (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			name TEXT NOT NULL,
			order_index INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE tags (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE recipe_tags (
			recipe_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			PRIMARY KEY (recipe_id, tag_id)
		)`,

		`INSERT INTO recipes VALUES ('r1', 'Pancakes', 20, 4, 100, 100, NULL)`,
		`INSERT INTO recipes VALUES ('r2', 'Soup', NULL, 2, 200, 200, NULL)`,

		`INSERT INTO recipe_ingredients VALUES ('i1', 'r1', '2 cups flour')`,
		`INSERT INTO recipe_ingredients VALUES ('i2', 'r1', 'salt')`,
		`INSERT INTO recipe_ingredients VALUES ('i3', 'r2', '3 carrots')`,

		`INSERT INTO templates VALUES ('tp1', 'Baking', 10, 10, NULL)`,
		`INSERT INTO templates VALUES ('tp2', 'BAKING', 20, 20, NULL)`,
		`INSERT INTO templates VALUES ('tp3', 'Dinner', 30, 30, NULL)`,
		`INSERT INTO template_sections VALUES ('ts1', 'tp1', 'Prep', 0, 10, 10)`,

		`INSERT INTO recipe_sections VALUES ('s1', 'r1', 'ts1', 'Mix everything')`,
		`INSERT INTO recipe_sections VALUES ('s2', 'r2', NULL, 'Simmer for an hour')`,

		`INSERT INTO tags VALUES ('tag1', 'Dinner')`,
		`INSERT INTO tags VALUES ('tag2', 'dinner')`,
		`INSERT INTO tags VALUES ('tag3', 'Quick')`,
		`INSERT INTO recipe_tags VALUES ('r1', 'tag1')`,
		`INSERT INTO recipe_tags VALUES ('r1', 'tag2')`,
		`INSERT INTO recipe_tags VALUES ('r2', 'tag2')`,
	)
	return store
}

func migrateLegacyStore(t *testing.T, store *Store) *MigrationReport {
	t.Helper()
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	report, err := store.RunMigrations(ctx)
	if err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	return report
}

func TestRunMigrations_AppliesAllStepsOnLegacyStore(t *testing.T) {
	store := newLegacyStore(t)
	report := migrateLegacyStore(t, store)

	if report.Degraded() {
		t.Fatalf("unexpected degraded run: %v", report.Errors())
	}

	want := map[string]bool{
		"recipe_ingredients": true,
		"recipe_sections":    true,
		"recipes":            true,
		"tag_dedup":          true,
		"template_names":     true,
	}
	applied := make(map[string]bool)
	for _, name := range report.Applied() {
		applied[name] = true
	}
	for name := range want {
		if !applied[name] {
			t.Errorf("step %s did not apply", name)
		}
	}
}

func TestRunMigrations_SplitsIngredientText(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	db, err := store.conn(context.Background())
	if err != nil {
		t.Fatalf("conn failed: %v", err)
	}

	type ing struct {
		name   string
		amount sql.NullFloat64
		unit   sql.NullString
		order  int
	}
	read := func(id string) ing {
		var out ing
		err := db.QueryRow(
			"SELECT name, amount, unit, order_index FROM recipe_ingredients WHERE id = ?", id).
			Scan(&out.name, &out.amount, &out.unit, &out.order)
		if err != nil {
			t.Fatalf("reading ingredient %s: %v", id, err)
		}
		return out
	}

	flour := read("i1")
	if flour.name != "flour" || !flour.amount.Valid || flour.amount.Float64 != 2 ||
		!flour.unit.Valid || flour.unit.String != "cups" || flour.order != 0 {
		t.Errorf("i1 parsed wrong: %+v", flour)
	}

	salt := read("i2")
	if salt.name != "salt" || salt.amount.Valid || salt.unit.Valid || salt.order != 1 {
		t.Errorf("i2 parsed wrong: %+v", salt)
	}

	carrots := read("i3")
	if carrots.name != "carrots" || !carrots.amount.Valid || carrots.amount.Float64 != 3 ||
		carrots.unit.Valid || carrots.order != 0 {
		t.Errorf("i3 parsed wrong: %+v", carrots)
	}
}

func TestParseIngredientText(t *testing.T) {
	tests := []struct {
		text       string
		wantName   string
		wantAmount float64
		hasAmount  bool
		wantUnit   string
		hasUnit    bool
	}{
		{"2 cups flour", "flour", 2, true, "cups", true},
		{"0.5 tsp vanilla extract", "vanilla extract", 0.5, true, "tsp", true},
		{"3 carrots", "carrots", 3, true, "", false},
		{"salt to taste", "salt to taste", 0, false, "", false},
		{"salt", "salt", 0, false, "", false},
		{"7", "", 0, false, "", false},
		{"", "", 0, false, "", false},
	}

	for _, tt := range tests {
		name, amount, unit := parseIngredientText(tt.text)
		if name != tt.wantName {
			t.Errorf("%q: name = %q, want %q", tt.text, name, tt.wantName)
		}
		if tt.hasAmount != (amount != nil) {
			t.Errorf("%q: amount presence = %v, want %v", tt.text, amount != nil, tt.hasAmount)
		} else if tt.hasAmount && *amount != tt.wantAmount {
			t.Errorf("%q: amount = %v, want %v", tt.text, *amount, tt.wantAmount)
		}
		if tt.hasUnit != (unit != nil) {
			t.Errorf("%q: unit presence = %v, want %v", tt.text, unit != nil, tt.hasUnit)
		} else if tt.hasUnit && *unit != tt.wantUnit {
			t.Errorf("%q: unit = %q, want %q", tt.text, *unit, tt.wantUnit)
		}
	}
}

func TestRunMigrations_ResolvesSectionNames(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	db, err := store.conn(context.Background())
	if err != nil {
		t.Fatalf("conn failed: %v", err)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM recipe_sections WHERE id = 's1'").Scan(&name); err != nil {
		t.Fatalf("reading s1: %v", err)
	}
	if name != "Prep" {
		t.Errorf("s1 name = %q, want Prep (resolved through template section)", name)
	}

	if err := db.QueryRow("SELECT name FROM recipe_sections WHERE id = 's2'").Scan(&name); err != nil {
		t.Fatalf("reading s2: %v", err)
	}
	if name != "Instructions" {
		t.Errorf("s2 name = %q, want fallback Instructions", name)
	}

	var content string
	if err := db.QueryRow("SELECT content FROM recipe_sections WHERE id = 's2'").Scan(&content); err != nil {
		t.Fatalf("reading s2 content: %v", err)
	}
	if content != "Simmer for an hour" {
		t.Errorf("s2 content lost in rebuild: %q", content)
	}
}

func TestRunMigrations_AddsFavoriteColumn(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	if n := queryInt(t, store, "SELECT COUNT(*) FROM recipes WHERE favorite = 0"); n != 2 {
		t.Errorf("expected 2 recipes with default favorite, got %d", n)
	}
	if n := queryInt(t, store, "SELECT COUNT(*) FROM recipes WHERE name = 'Pancakes' AND cook_time_minutes = 20"); n != 1 {
		t.Errorf("legacy recipe data lost in rebuild")
	}
}

func TestRunMigrations_DedupsTags(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	if n := queryInt(t, store, "SELECT COUNT(*) FROM tags WHERE name = 'Dinner' COLLATE NOCASE"); n != 1 {
		t.Errorf("expected one dinner tag after dedup, got %d", n)
	}
	// r1 carried both casings; the links must collapse to one.
	if n := queryInt(t, store, "SELECT COUNT(*) FROM recipe_tags WHERE recipe_id = 'r1'"); n != 1 {
		t.Errorf("expected 1 link for r1, got %d", n)
	}
	// r2's link must follow the surviving tag.
	if n := queryInt(t, store,
		`SELECT COUNT(*) FROM recipe_tags rt JOIN tags t ON t.id = rt.tag_id
		 WHERE rt.recipe_id = 'r2' AND t.name = 'Dinner' COLLATE NOCASE`); n != 1 {
		t.Errorf("r2 link not re-pointed to surviving tag")
	}
}

func TestRunMigrations_RenamesDuplicateTemplates(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	db, err := store.conn(context.Background())
	if err != nil {
		t.Fatalf("conn failed: %v", err)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM templates WHERE id = 'tp1'").Scan(&name); err != nil {
		t.Fatalf("reading tp1: %v", err)
	}
	if name != "Baking" {
		t.Errorf("first occurrence renamed: %q", name)
	}

	if err := db.QueryRow("SELECT name FROM templates WHERE id = 'tp2'").Scan(&name); err != nil {
		t.Fatalf("reading tp2: %v", err)
	}
	if name != "BAKING (2)" {
		t.Errorf("tp2 name = %q, want BAKING (2)", name)
	}
}

func TestRunMigrations_IdempotentOnCurrentStore(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	report, err := store.RunMigrations(context.Background())
	if err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
	if report.Degraded() {
		t.Fatalf("second run degraded: %v", report.Errors())
	}
	if applied := report.Applied(); len(applied) != 0 {
		t.Errorf("second run applied steps: %v", applied)
	}
}

func TestRunMigrations_NoopOnFreshStore(t *testing.T) {
	store := newTestStore(t)

	report, err := store.RunMigrations(context.Background())
	if err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if report.Degraded() {
		t.Fatalf("fresh store degraded: %v", report.Errors())
	}
	if applied := report.Applied(); len(applied) != 0 {
		t.Errorf("fresh store applied steps: %v", applied)
	}
}

func TestRunMigrations_RestoresForeignKeys(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	if n := queryInt(t, store, "PRAGMA foreign_keys"); n != 1 {
		t.Errorf("foreign keys not restored after migration: %d", n)
	}
}

func TestRunMigrations_RecreatesUniqueIndexes(t *testing.T) {
	store := newLegacyStore(t)
	migrateLegacyStore(t, store)

	// After dedup the unique tag index must be in force.
	execAll(t, store, "INSERT INTO tags (id, name) VALUES ('x1', 'Zesty')")
	db, err := store.conn(context.Background())
	if err != nil {
		t.Fatalf("conn failed: %v", err)
	}
	if _, err := db.Exec("INSERT INTO tags (id, name) VALUES ('x2', 'zesty')"); err == nil {
		t.Error("expected unique index to reject duplicate tag name")
	}
}
