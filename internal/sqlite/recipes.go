package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ovenbird/larder/pkg/types"
)

// RecipeRepository is the only sanctioned entry point for recipe data.
// Every multi-row write runs as one transaction on the shared Store; rows
// never leak to callers, only domain objects.
type RecipeRepository struct {
	store *Store

	// tagLinkHook runs inside the create transaction just before tag
	// resolution. Tests use it to prove that a failure at the tag-linking
	// step rolls back the ingredient and section inserts too.
	tagLinkHook func() error
}

// NewRecipeRepository creates a repository on the shared store.
func NewRecipeRepository(store *Store) *RecipeRepository {
	return &RecipeRepository{store: store}
}

const recipeColumns = "id, name, cook_time_minutes, servings, favorite, image_url, image_width, image_height, created_at, updated_at, deleted_at"

// GetAll returns all live recipes, most recently updated first.
func (r *RecipeRepository) GetAll(ctx context.Context) ([]*types.Recipe, error) {
	return r.list(ctx, "deleted_at IS NULL")
}

// GetByTag returns live recipes carrying the given tag, matched
// case-insensitively.
func (r *RecipeRepository) GetByTag(ctx context.Context, tag string) ([]*types.Recipe, error) {
	return r.list(ctx,
		`deleted_at IS NULL AND EXISTS (
			SELECT 1 FROM recipe_tags rt JOIN tags t ON t.id = rt.tag_id
			WHERE rt.recipe_id = recipes.id AND t.name = ? COLLATE NOCASE)`,
		tag)
}

// GetFavorites returns live recipes flagged as favorites.
func (r *RecipeRepository) GetFavorites(ctx context.Context) ([]*types.Recipe, error) {
	return r.list(ctx, "deleted_at IS NULL AND favorite = 1")
}

// GetByMaxCookTime returns live recipes whose cook time is known and at
// most the given number of minutes.
func (r *RecipeRepository) GetByMaxCookTime(ctx context.Context, minutes int) ([]*types.Recipe, error) {
	return r.list(ctx,
		"deleted_at IS NULL AND cook_time_minutes IS NOT NULL AND cook_time_minutes <= ?",
		minutes)
}

// Search returns live recipes whose name or any associated tag name
// contains the query, case-insensitively.
func (r *RecipeRepository) Search(ctx context.Context, query string) ([]*types.Recipe, error) {
	pattern := "%" + query + "%"
	return r.list(ctx,
		`deleted_at IS NULL AND (name LIKE ? OR EXISTS (
			SELECT 1 FROM recipe_tags rt JOIN tags t ON t.id = rt.tag_id
			WHERE rt.recipe_id = recipes.id AND t.name LIKE ?))`,
		pattern, pattern)
}

// list runs one recipe query plus one batched tag query; tags are attached
// by recipe id, never fetched per row.
func (r *RecipeRepository) list(ctx context.Context, where string, args ...any) ([]*types.Recipe, error) {
	db, err := r.store.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+recipeColumns+" FROM recipes WHERE "+where+" ORDER BY updated_at DESC", args...)
	if err != nil {
		return nil, classifyError(fmt.Errorf("fetching recipes: %w", err))
	}
	defer rows.Close()

	var recipes []*types.Recipe
	for rows.Next() {
		rec, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	rows.Close()

	if err := r.attachTags(ctx, recipes); err != nil {
		return nil, err
	}
	if recipes == nil {
		recipes = []*types.Recipe{}
	}
	return recipes, nil
}

// attachTags batch-fetches the tags of every listed recipe in one query.
func (r *RecipeRepository) attachTags(ctx context.Context, recipes []*types.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	db, err := r.store.conn(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*types.Recipe, len(recipes))
	placeholders := make([]string, len(recipes))
	args := make([]any, len(recipes))
	for i, rec := range recipes {
		byID[rec.ID] = rec
		placeholders[i] = "?"
		args[i] = rec.ID
	}

	rows, err := db.QueryContext(ctx,
		`SELECT rt.recipe_id, t.name FROM recipe_tags rt
		 JOIN tags t ON t.id = rt.tag_id
		 WHERE rt.recipe_id IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY t.name COLLATE NOCASE`, args...)
	if err != nil {
		return classifyError(fmt.Errorf("fetching tags: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var recipeID, name string
		if err := rows.Scan(&recipeID, &name); err != nil {
			return classifyError(fmt.Errorf("scanning tag: %w", err))
		}
		if rec, ok := byID[recipeID]; ok {
			rec.Tags = append(rec.Tags, name)
		}
	}
	return classifyError(rows.Err())
}

// GetByID returns the fully hydrated recipe: ingredients ordered by
// order_index, sections in table order, tags. Absent or soft-deleted ids
// yield ErrNotFound.
func (r *RecipeRepository) GetByID(ctx context.Context, id string) (*types.Recipe, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, err := r.store.conn(ctx)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		"SELECT "+recipeColumns+" FROM recipes WHERE id = ? AND deleted_at IS NULL", id)
	rec, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.hydrateChildren(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.attachTags(ctx, []*types.Recipe{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *RecipeRepository) hydrateChildren(ctx context.Context, rec *types.Recipe) error {
	db, err := r.store.conn(ctx)
	if err != nil {
		return err
	}

	ingRows, err := db.QueryContext(ctx,
		"SELECT id, recipe_id, name, amount, unit, order_index FROM recipe_ingredients WHERE recipe_id = ? ORDER BY order_index",
		rec.ID)
	if err != nil {
		return classifyError(fmt.Errorf("fetching ingredients: %w", err))
	}
	defer ingRows.Close()
	for ingRows.Next() {
		var ing types.Ingredient
		var amount sql.NullFloat64
		var unit sql.NullString
		if err := ingRows.Scan(&ing.ID, &ing.RecipeID, &ing.Name, &amount, &unit, &ing.OrderIndex); err != nil {
			return classifyError(fmt.Errorf("scanning ingredient: %w", err))
		}
		if amount.Valid {
			ing.Amount = &amount.Float64
		}
		if unit.Valid {
			ing.Unit = &unit.String
		}
		rec.Ingredients = append(rec.Ingredients, ing)
	}
	if err := ingRows.Err(); err != nil {
		return classifyError(err)
	}

	secRows, err := db.QueryContext(ctx,
		"SELECT id, recipe_id, name, content, updated_at FROM recipe_sections WHERE recipe_id = ? ORDER BY rowid",
		rec.ID)
	if err != nil {
		return classifyError(fmt.Errorf("fetching sections: %w", err))
	}
	defer secRows.Close()
	for secRows.Next() {
		var sec types.InstructionSection
		if err := secRows.Scan(&sec.ID, &sec.RecipeID, &sec.Name, &sec.Content, &sec.UpdatedAt); err != nil {
			return classifyError(fmt.Errorf("scanning section: %w", err))
		}
		rec.Sections = append(rec.Sections, sec)
	}
	return classifyError(secRows.Err())
}

// Create inserts the recipe row, every ingredient row, every section row,
// and resolves and links each requested tag name, all in one transaction.
// A failure at any step, tag linking included, rolls the whole create back.
// The passed recipe is filled in place with ids and timestamps.
func (r *RecipeRepository) Create(ctx context.Context, rec *types.Recipe) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	now := nowMillis()
	rec.ID = newID()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.DeletedAt = nil

	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		favorite := 0
		if rec.Favorite {
			favorite = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recipes (id, name, cook_time_minutes, servings, favorite, image_url, image_width, image_height, created_at, updated_at, deleted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
			rec.ID, rec.Name, nullableInt(rec.CookTimeMinutes), nullableInt(rec.Servings), favorite,
			nullableString(rec.ImageURL), nullableInt(rec.ImageWidth), nullableInt(rec.ImageHeight),
			rec.CreatedAt, rec.UpdatedAt); err != nil {
			return fmt.Errorf("inserting recipe: %w", err)
		}

		for i := range rec.Ingredients {
			ing := &rec.Ingredients[i]
			ing.ID = newID()
			ing.RecipeID = rec.ID
			ing.OrderIndex = i
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO recipe_ingredients (id, recipe_id, name, amount, unit, order_index) VALUES (?, ?, ?, ?, ?, ?)",
				ing.ID, ing.RecipeID, ing.Name, nullableFloat(ing.Amount), nullableString(ing.Unit), ing.OrderIndex); err != nil {
				return fmt.Errorf("inserting ingredient: %w", err)
			}
		}

		for i := range rec.Sections {
			sec := &rec.Sections[i]
			sec.ID = newID()
			sec.RecipeID = rec.ID
			sec.UpdatedAt = now
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO recipe_sections (id, recipe_id, name, content, updated_at) VALUES (?, ?, ?, ?, ?)",
				sec.ID, sec.RecipeID, sec.Name, sec.Content, sec.UpdatedAt); err != nil {
				return fmt.Errorf("inserting section: %w", err)
			}
		}

		if r.tagLinkHook != nil {
			if err := r.tagLinkHook(); err != nil {
				return err
			}
		}

		resolved, err := resolveTags(ctx, tx, rec.ID, rec.Tags)
		if err != nil {
			return err
		}
		rec.Tags = resolved
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// resolveTags links each requested tag name to the recipe. Names are
// trimmed and empties skipped; an existing tag is reused via
// case-insensitive lookup, otherwise a new row is inserted. The join
// insert ignores duplicate-key conflicts, so linking is idempotent under
// retry. Returns the canonical (stored) tag names in request order.
func resolveTags(ctx context.Context, tx *sql.Tx, recipeID string, names []string) ([]string, error) {
	var resolved []string
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		var tagID, stored string
		err := tx.QueryRowContext(ctx,
			"SELECT id, name FROM tags WHERE name = ? COLLATE NOCASE", name).Scan(&tagID, &stored)
		if err == sql.ErrNoRows {
			tagID, stored = newID(), name
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO tags (id, name) VALUES (?, ?)", tagID, name); err != nil {
				return nil, fmt.Errorf("inserting tag %q: %w", name, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("looking up tag %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO recipe_tags (recipe_id, tag_id) VALUES (?, ?)", recipeID, tagID); err != nil {
			return nil, fmt.Errorf("linking tag %q: %w", name, err)
		}
		resolved = append(resolved, stored)
	}
	return resolved, nil
}

// Update applies a partial patch: only supplied fields change, updated_at
// always bumps. Absent or soft-deleted targets yield ErrNotFound.
func (r *RecipeRepository) Update(ctx context.Context, id string, patch types.RecipePatch) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := requireLiveRecipe(ctx, tx, id); err != nil {
			return err
		}

		sets := []string{"updated_at = ?"}
		args := []any{nowMillis()}
		if patch.Name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *patch.Name)
		}
		if patch.CookTimeMinutes != nil {
			sets = append(sets, "cook_time_minutes = ?")
			args = append(args, *patch.CookTimeMinutes)
		}
		if patch.Servings != nil {
			sets = append(sets, "servings = ?")
			args = append(args, *patch.Servings)
		}
		if patch.Favorite != nil {
			favorite := 0
			if *patch.Favorite {
				favorite = 1
			}
			sets = append(sets, "favorite = ?")
			args = append(args, favorite)
		}
		if patch.ImageURL != nil {
			sets = append(sets, "image_url = ?")
			args = append(args, *patch.ImageURL)
		}
		if patch.ImageWidth != nil {
			sets = append(sets, "image_width = ?")
			args = append(args, *patch.ImageWidth)
		}
		if patch.ImageHeight != nil {
			sets = append(sets, "image_height = ?")
			args = append(args, *patch.ImageHeight)
		}

		args = append(args, id)
		if _, err := tx.ExecContext(ctx,
			"UPDATE recipes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("updating recipe: %w", err)
		}
		return nil
	})
}

// ToggleFavorite flips the favorite flag in a read-modify-write.
func (r *RecipeRepository) ToggleFavorite(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		var favorite int
		err := tx.QueryRowContext(ctx,
			"SELECT favorite FROM recipes WHERE id = ? AND deleted_at IS NULL", id).Scan(&favorite)
		if err == sql.ErrNoRows {
			return types.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading favorite: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE recipes SET favorite = ?, updated_at = ? WHERE id = ?",
			1-favorite, nowMillis(), id); err != nil {
			return fmt.Errorf("toggling favorite: %w", err)
		}
		return nil
	})
}

// Delete soft-deletes the recipe. Children are not cascaded: they stay
// reachable by low-level id lookups but vanish from normal listings with
// their parent.
func (r *RecipeRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE recipes SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
			nowMillis(), id)
		if err != nil {
			return fmt.Errorf("deleting recipe: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// AllTags returns every tag name, sorted case-insensitively.
func (r *RecipeRepository) AllTags(ctx context.Context) ([]string, error) {
	return r.tagNames(ctx, "", nil)
}

// SearchTags returns tag names containing the query, case-insensitively,
// sorted the same way. Intended for autocomplete-style consumers.
func (r *RecipeRepository) SearchTags(ctx context.Context, query string) ([]string, error) {
	return r.tagNames(ctx, "WHERE name LIKE ?", []any{"%" + query + "%"})
}

func (r *RecipeRepository) tagNames(ctx context.Context, where string, args []any) ([]string, error) {
	db, err := r.store.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM tags "+where+" ORDER BY name COLLATE NOCASE", args...)
	if err != nil {
		return nil, classifyError(fmt.Errorf("fetching tags: %w", err))
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classifyError(fmt.Errorf("scanning tag: %w", err))
		}
		names = append(names, name)
	}
	return names, classifyError(rows.Err())
}

// requireLiveRecipe raises ErrNotFound for absent or soft-deleted ids, so
// callers never have to infer it from an empty result.
func requireLiveRecipe(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM recipes WHERE id = ? AND deleted_at IS NULL", id).Scan(&one)
	if err == sql.ErrNoRows {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking recipe: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecipe(src scanner) (*types.Recipe, error) {
	var rec types.Recipe
	var cookTime, servings, imageWidth, imageHeight sql.NullInt64
	var imageURL sql.NullString
	var favorite int
	var deletedAt sql.NullInt64

	err := src.Scan(&rec.ID, &rec.Name, &cookTime, &servings, &favorite,
		&imageURL, &imageWidth, &imageHeight, &rec.CreatedAt, &rec.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, classifyError(fmt.Errorf("scanning recipe: %w", err))
	}

	rec.Favorite = favorite != 0
	if cookTime.Valid {
		v := int(cookTime.Int64)
		rec.CookTimeMinutes = &v
	}
	if servings.Valid {
		v := int(servings.Int64)
		rec.Servings = &v
	}
	if imageURL.Valid {
		rec.ImageURL = &imageURL.String
	}
	if imageWidth.Valid {
		v := int(imageWidth.Int64)
		rec.ImageWidth = &v
	}
	if imageHeight.Valid {
		v := int(imageHeight.Int64)
		rec.ImageHeight = &v
	}
	if deletedAt.Valid {
		rec.DeletedAt = &deletedAt.Int64
	}
	return &rec, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
