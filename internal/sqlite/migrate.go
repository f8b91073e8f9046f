package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// The migration engine brings a store created by an older schema into
// conformance with the current one before any repository code runs. There
// is no schema-version table: the database file itself is the only source
// of truth, and each table's shape is classified purely by column
// introspection. RunMigrations is idempotent; on an already-migrated store
// every structural step reports Applied=false.

// MigrationStep records the outcome of one migration step.
type MigrationStep struct {
	Name    string
	Applied bool // the step found legacy data and rewrote it
	Err     error
}

// MigrationReport accumulates per-step outcomes. Step errors are swallowed
// by RunMigrations (a failure to migrate one table must not abort the
// others); the report lets callers and tests assert on degraded-but-running
// states instead of relying on log output alone.
type MigrationReport struct {
	Steps []MigrationStep
}

// Errors returns the errors swallowed during the run.
func (r *MigrationReport) Errors() []error {
	var errs []error
	for _, st := range r.Steps {
		if st.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Name, st.Err))
		}
	}
	return errs
}

// Degraded reports whether any step failed. A degraded store is still
// usable, possibly with a still-legacy table; the next launch retries.
func (r *MigrationReport) Degraded() bool {
	return len(r.Errors()) > 0
}

// Applied returns the names of the steps that rewrote data.
func (r *MigrationReport) Applied() []string {
	var names []string
	for _, st := range r.Steps {
		if st.Applied && st.Err == nil {
			names = append(names, st.Name)
		}
	}
	return names
}

// RunMigrations executes once per startup, after EnsureSchema and before
// any repository call. Foreign-key enforcement is suspended for the whole
// run (legacy rows may transiently violate the new schema's constraints
// mid-rewrite) and unconditionally restored afterward, even on error. The
// single-connection pool makes the PRAGMA stick for every statement below.
func (s *Store) RunMigrations(ctx context.Context) (*MigrationReport, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return nil, classifyError(fmt.Errorf("suspending foreign keys: %w", err))
	}
	defer func() {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			s.logger.Error("restoring foreign keys", "error", err)
		}
	}()

	report := &MigrationReport{}
	step := func(name string, fn func(context.Context) (bool, error)) {
		applied, err := fn(ctx)
		switch {
		case err != nil:
			s.logger.Error("migration step failed", "step", name, "error", err)
		case applied:
			s.logger.Info("migration step applied", "step", name)
		}
		report.Steps = append(report.Steps, MigrationStep{Name: name, Applied: applied, Err: err})
	}

	// Structural table-shape migrations, each independently wrapped.
	step("recipe_ingredients", s.migrateIngredients)
	step("recipe_sections", s.migrateSections)
	step("recipes", s.migrateRecipes)

	// Invariant repair, after all table shapes are current.
	step("tag_dedup", s.dedupeTags)
	step("template_names", s.dedupeTemplateNames)
	step("indexes", func(ctx context.Context) (bool, error) {
		return false, s.ensureIndexes(ctx)
	})

	return report, nil
}

// tableColumns returns the live column names of a table via introspection.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// migrDDL rewrites a canonical CREATE TABLE statement to use a temporary
// table name, so a rebuilt table carries exactly the canonical column set.
func migrDDL(ddl, table string) string {
	return strings.Replace(ddl, "EXISTS "+table, "EXISTS "+table+"_migr", 1)
}

// migrateIngredients rewrites the legacy recipe_ingredients shape, which
// stored "quantity unit name" as a single description text column, into the
// typed name/amount/unit columns.
func (s *Store) migrateIngredients(ctx context.Context) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	cols, err := tableColumns(ctx, db, "recipe_ingredients")
	if err != nil {
		return false, err
	}
	if !hasColumn(cols, "description") {
		// Already the canonical shape.
		return false, nil
	}

	hasOrder := hasColumn(cols, "order_index")

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migrDDL(createRecipeIngredients, "recipe_ingredients")); err != nil {
			return fmt.Errorf("creating rebuilt table: %w", err)
		}

		// Legacy stores without an order column fall back to insertion order.
		orderExpr, orderBy := "0", "recipe_id, rowid"
		if hasOrder {
			orderExpr, orderBy = "order_index", "recipe_id, order_index, rowid"
		}
		rows, err := tx.QueryContext(ctx,
			"SELECT id, recipe_id, description, "+orderExpr+" FROM recipe_ingredients ORDER BY "+orderBy)
		if err != nil {
			return fmt.Errorf("reading legacy rows: %w", err)
		}
		defer rows.Close()

		type legacyRow struct {
			id, recipeID, description string
			order                     int
		}
		var legacy []legacyRow
		for rows.Next() {
			var lr legacyRow
			if err := rows.Scan(&lr.id, &lr.recipeID, &lr.description, &lr.order); err != nil {
				return fmt.Errorf("scanning legacy row: %w", err)
			}
			legacy = append(legacy, lr)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		// Reassign a dense order per recipe.
		orderByRecipe := make(map[string]int)
		for _, lr := range legacy {
			name, amount, unit := parseIngredientText(lr.description)
			if name == "" {
				// Unsalvageable split; keep the raw text so no data is lost.
				s.logger.Warn("ingredient text kept verbatim", "id", lr.id, "text", lr.description)
				name, amount, unit = lr.description, nil, nil
			}
			idx := orderByRecipe[lr.recipeID]
			orderByRecipe[lr.recipeID] = idx + 1

			var amt, u any
			if amount != nil {
				amt = *amount
			}
			if unit != nil {
				u = *unit
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO recipe_ingredients_migr (id, recipe_id, name, amount, unit, order_index) VALUES (?, ?, ?, ?, ?, ?)",
				lr.id, lr.recipeID, name, amt, u, idx); err != nil {
				return fmt.Errorf("inserting rebuilt row: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DROP TABLE recipe_ingredients"); err != nil {
			return fmt.Errorf("dropping legacy table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE recipe_ingredients_migr RENAME TO recipe_ingredients"); err != nil {
			return fmt.Errorf("renaming rebuilt table: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// parseIngredientText splits a legacy free-form ingredient line by
// whitespace tokens: first token parsed as a numeric amount if present,
// second token as a unit if present, remainder as the item name. This is
// best-effort recovery, not a guaranteed-correct transform; lines that do
// not start with a number keep the full text as the name.
func parseIngredientText(text string) (name string, amount *float64, unit *string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, nil
	}

	a, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return strings.Join(fields, " "), nil, nil
	}

	switch len(fields) {
	case 1:
		// A bare number is not a name; let the caller keep the raw text.
		return "", nil, nil
	case 2:
		// "2 eggs": no unit, second token is the name.
		return fields[1], &a, nil
	default:
		u := fields[1]
		return strings.Join(fields[2:], " "), &a, &u
	}
}

// migrateSections rewrites the legacy recipe_sections shape, which carried
// a template_section_id reference instead of a free-standing name. The
// display name is resolved by joining through template_sections, falling
// back to a sentinel when the join target is gone.
func (s *Store) migrateSections(ctx context.Context) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	cols, err := tableColumns(ctx, db, "recipe_sections")
	if err != nil {
		return false, err
	}
	if !hasColumn(cols, "template_section_id") {
		return false, nil
	}

	nameExpr := "COALESCE((SELECT ts.name FROM template_sections ts WHERE ts.id = recipe_sections.template_section_id), 'Instructions')"
	if hasColumn(cols, "name") {
		nameExpr = "COALESCE(name, " + nameExpr + ")"
	}
	updatedExpr := strconv.FormatInt(nowMillis(), 10)
	if hasColumn(cols, "updated_at") {
		updatedExpr = "updated_at"
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migrDDL(createRecipeSections, "recipe_sections")); err != nil {
			return fmt.Errorf("creating rebuilt table: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO recipe_sections_migr (id, recipe_id, name, content, updated_at) "+
				"SELECT id, recipe_id, "+nameExpr+", content, "+updatedExpr+" FROM recipe_sections"); err != nil {
			return fmt.Errorf("copying legacy rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE recipe_sections"); err != nil {
			return fmt.Errorf("dropping legacy table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE recipe_sections_migr RENAME TO recipe_sections"); err != nil {
			return fmt.Errorf("renaming rebuilt table: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// migrateRecipes rebuilds a recipes table predating the favorite flag and
// image columns. Columns shared with the canonical shape are copied as-is;
// the new ones take their defaults.
func (s *Store) migrateRecipes(ctx context.Context) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	cols, err := tableColumns(ctx, db, "recipes")
	if err != nil {
		return false, err
	}
	if hasColumn(cols, "favorite") {
		return false, nil
	}

	canonical := []string{
		"id", "name", "cook_time_minutes", "servings",
		"image_url", "image_width", "image_height",
		"created_at", "updated_at", "deleted_at",
	}
	var shared []string
	for _, c := range canonical {
		if hasColumn(cols, c) {
			shared = append(shared, c)
		}
	}
	colList := strings.Join(shared, ", ")

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migrDDL(createRecipes, "recipes")); err != nil {
			return fmt.Errorf("creating rebuilt table: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO recipes_migr ("+colList+") SELECT "+colList+" FROM recipes"); err != nil {
			return fmt.Errorf("copying legacy rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE recipes"); err != nil {
			return fmt.Errorf("dropping legacy table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE recipes_migr RENAME TO recipes"); err != nil {
			return fmt.Errorf("renaming rebuilt table: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// dedupeTags groups tags by case-insensitive name, keeps a single survivor
// per group, re-points recipe_tags rows from the losers onto it (skipping
// rows that would duplicate a (recipe_id, tag_id) pair) and deletes the
// loser tag rows.
func (s *Store) dedupeTags(ctx context.Context) (bool, error) {
	applied := false
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY rowid")
		if err != nil {
			return fmt.Errorf("reading tags: %w", err)
		}
		defer rows.Close()

		survivors := make(map[string]string) // lower(name) -> surviving id
		var losers [][2]string               // loser id, survivor id
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				return fmt.Errorf("scanning tag: %w", err)
			}
			key := strings.ToLower(name)
			if surv, ok := survivors[key]; ok {
				losers = append(losers, [2]string{id, surv})
			} else {
				survivors[key] = id
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, pair := range losers {
			loser, survivor := pair[0], pair[1]
			if _, err := tx.ExecContext(ctx,
				"UPDATE OR IGNORE recipe_tags SET tag_id = ? WHERE tag_id = ?", survivor, loser); err != nil {
				return fmt.Errorf("re-pointing recipe_tags: %w", err)
			}
			// Rows that would have duplicated a (recipe_id, tag_id) pair
			// were skipped above; drop them.
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM recipe_tags WHERE tag_id = ?", loser); err != nil {
				return fmt.Errorf("removing duplicate links: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM tags WHERE id = ?", loser); err != nil {
				return fmt.Errorf("deleting duplicate tag: %w", err)
			}
		}
		applied = len(losers) > 0
		return nil
	})
	return applied, err
}

// dedupeTemplateNames renames templates whose names collide ignoring case,
// appending the lowest unused numeric suffix. The scan for a free suffix
// covers all existing names, not just the colliding group, so the rename
// cannot create a fresh collision.
func (s *Store) dedupeTemplateNames(ctx context.Context) (bool, error) {
	applied := false
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id, name FROM templates ORDER BY rowid")
		if err != nil {
			return fmt.Errorf("reading templates: %w", err)
		}
		defer rows.Close()

		type tpl struct{ id, name string }
		var all []tpl
		taken := make(map[string]bool)
		for rows.Next() {
			var t tpl
			if err := rows.Scan(&t.id, &t.name); err != nil {
				return fmt.Errorf("scanning template: %w", err)
			}
			all = append(all, t)
			taken[strings.ToLower(t.name)] = true
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		seen := make(map[string]bool)
		for _, t := range all {
			key := strings.ToLower(t.name)
			if !seen[key] {
				seen[key] = true
				continue
			}
			newName := uniqueName(t.name, taken)
			taken[strings.ToLower(newName)] = true
			if _, err := tx.ExecContext(ctx,
				"UPDATE templates SET name = ?, updated_at = ? WHERE id = ?",
				newName, nowMillis(), t.id); err != nil {
				return fmt.Errorf("renaming template %s: %w", t.id, err)
			}
			applied = true
		}
		return nil
	})
	return applied, err
}
