package sqlite

import (
	"context"
	"fmt"
)

// Canonical table DDL. Every statement is CREATE IF NOT EXISTS: EnsureSchema
// never drops or alters an existing table, so it is safe on a pristine file
// and a no-op on a current one. Timestamps are integer milliseconds since
// epoch; a non-NULL deleted_at marks a soft-deleted row.
const (
	createRecipes = `CREATE TABLE IF NOT EXISTS recipes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    cook_time_minutes INTEGER,
    servings INTEGER,
    favorite INTEGER NOT NULL DEFAULT 0,
    image_url TEXT,
    image_width INTEGER,
    image_height INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted_at INTEGER
);`

	createRecipeIngredients = `CREATE TABLE IF NOT EXISTS recipe_ingredients (
    id TEXT PRIMARY KEY,
    recipe_id TEXT NOT NULL,
    name TEXT NOT NULL,
    amount REAL,
    unit TEXT,
    order_index INTEGER NOT NULL,
    FOREIGN KEY (recipe_id) REFERENCES recipes(id)
);`

	createRecipeSections = `CREATE TABLE IF NOT EXISTS recipe_sections (
    id TEXT PRIMARY KEY,
    recipe_id TEXT NOT NULL,
    name TEXT NOT NULL,
    content TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (recipe_id) REFERENCES recipes(id)
);`

	createTemplates = `CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted_at INTEGER
);`

	createTemplateSections = `CREATE TABLE IF NOT EXISTS template_sections (
    id TEXT PRIMARY KEY,
    template_id TEXT NOT NULL,
    name TEXT NOT NULL,
    order_index INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (template_id) REFERENCES templates(id)
);`

	createTags = `CREATE TABLE IF NOT EXISTS tags (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);`

	createRecipeTags = `CREATE TABLE IF NOT EXISTS recipe_tags (
    recipe_id TEXT NOT NULL,
    tag_id TEXT NOT NULL,
    PRIMARY KEY (recipe_id, tag_id),
    FOREIGN KEY (recipe_id) REFERENCES recipes(id),
    FOREIGN KEY (tag_id) REFERENCES tags(id)
);`

	createSettings = `CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value_json TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);`
)

// Index DDL. Uniqueness on names is enforced case-insensitively via
// COLLATE NOCASE; template name uniqueness applies to live rows only.
const (
	idxRecipesUpdated      = `CREATE INDEX IF NOT EXISTS idx_recipes_updated ON recipes(updated_at);`
	idxRecipesDeleted      = `CREATE INDEX IF NOT EXISTS idx_recipes_deleted ON recipes(deleted_at);`
	idxIngredientsRecipe   = `CREATE INDEX IF NOT EXISTS idx_recipe_ingredients_recipe ON recipe_ingredients(recipe_id, order_index);`
	idxSectionsRecipe      = `CREATE INDEX IF NOT EXISTS idx_recipe_sections_recipe ON recipe_sections(recipe_id);`
	idxTemplatesName       = `CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_name ON templates(name COLLATE NOCASE) WHERE deleted_at IS NULL;`
	idxTemplateSectionsKey = `CREATE UNIQUE INDEX IF NOT EXISTS idx_template_sections_key ON template_sections(template_id, name COLLATE NOCASE);`
	idxTemplateSectionsOrd = `CREATE INDEX IF NOT EXISTS idx_template_sections_ord ON template_sections(template_id, order_index);`
	idxTagsName            = `CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name ON tags(name COLLATE NOCASE);`
	idxRecipeTagsTag       = `CREATE INDEX IF NOT EXISTS idx_recipe_tags_tag ON recipe_tags(tag_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createRecipes,
	createRecipeIngredients,
	createRecipeSections,
	createTemplates,
	createTemplateSections,
	createTags,
	createRecipeTags,
	createSettings,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxRecipesUpdated,
	idxRecipesDeleted,
	idxIngredientsRecipe,
	idxSectionsRecipe,
	idxTemplatesName,
	idxTemplateSectionsKey,
	idxTemplateSectionsOrd,
	idxTagsName,
	idxRecipeTagsTag,
}

// tableNames lists every table, children before parents so Reset can drop
// in reverse-dependency order without tripping foreign keys.
var tableNames = []string{
	"recipe_tags",
	"recipe_ingredients",
	"recipe_sections",
	"recipes",
	"template_sections",
	"templates",
	"tags",
	"settings",
}

// EnsureSchema creates every table and index that is absent. It is a pure
// structural operation: it never touches data and is safe to run on every
// startup, before RunMigrations. Index creation is best effort at this
// point: a legacy store may still hold rows that violate a uniqueness
// index until RunMigrations repairs them, and the migration engine
// recreates every index unconditionally as its final step.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return classifyError(fmt.Errorf("creating table: %w", err))
		}
	}
	_ = s.ensureIndexes(ctx)
	return nil
}

// ensureIndexes (re)creates every index from the current schema definition.
// Idempotent and safe to run unconditionally on a store whose data already
// satisfies the uniqueness invariants.
func (s *Store) ensureIndexes(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	for _, stmt := range indexDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return classifyError(fmt.Errorf("creating index: %w", err))
		}
	}
	return nil
}

// TableNames returns the canonical table names.
func TableNames() []string {
	out := make([]string, len(tableNames))
	copy(out, tableNames)
	return out
}
