package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ovenbird/larder/pkg/types"
)

// TemplateRepository manages recipe templates and their ordered sections.
type TemplateRepository struct {
	store *Store
}

// NewTemplateRepository creates a repository on the shared store.
func NewTemplateRepository(store *Store) *TemplateRepository {
	return &TemplateRepository{store: store}
}

const templateColumns = "id, name, created_at, updated_at, deleted_at"

// DefaultTemplateName is the template created by GetDefault when the store
// has none.
const DefaultTemplateName = "Basic"

// GetAll returns all live templates with their sections, most recently
// updated first.
func (r *TemplateRepository) GetAll(ctx context.Context) ([]*types.Template, error) {
	return r.list(ctx, "deleted_at IS NULL ORDER BY updated_at DESC")
}

// Search returns live templates whose name contains the query,
// case-insensitively.
func (r *TemplateRepository) Search(ctx context.Context, query string) ([]*types.Template, error) {
	return r.list(ctx, "deleted_at IS NULL AND name LIKE ? ORDER BY updated_at DESC", "%"+query+"%")
}

func (r *TemplateRepository) list(ctx context.Context, tail string, args ...any) ([]*types.Template, error) {
	db, err := r.store.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE "+tail, args...)
	if err != nil {
		return nil, classifyError(fmt.Errorf("fetching templates: %w", err))
	}
	defer rows.Close()

	var templates []*types.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	rows.Close()

	if err := r.attachSections(ctx, templates); err != nil {
		return nil, err
	}
	if templates == nil {
		templates = []*types.Template{}
	}
	return templates, nil
}

// attachSections batch-fetches the sections of every listed template in one
// query, ordered by template then order_index.
func (r *TemplateRepository) attachSections(ctx context.Context, templates []*types.Template) error {
	if len(templates) == 0 {
		return nil
	}
	db, err := r.store.conn(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*types.Template, len(templates))
	placeholders := make([]string, len(templates))
	args := make([]any, len(templates))
	for i, tpl := range templates {
		byID[tpl.ID] = tpl
		placeholders[i] = "?"
		args[i] = tpl.ID
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, template_id, name, order_index, created_at, updated_at
		 FROM template_sections
		 WHERE template_id IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY template_id, order_index`, args...)
	if err != nil {
		return classifyError(fmt.Errorf("fetching template sections: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var sec types.TemplateSection
		if err := rows.Scan(&sec.ID, &sec.TemplateID, &sec.Name, &sec.OrderIndex, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return classifyError(fmt.Errorf("scanning template section: %w", err))
		}
		if tpl, ok := byID[sec.TemplateID]; ok {
			tpl.Sections = append(tpl.Sections, sec)
		}
	}
	return classifyError(rows.Err())
}

// GetByID returns the template with its sections. Absent or soft-deleted
// ids yield ErrNotFound.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*types.Template, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, err := r.store.conn(ctx)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE id = ? AND deleted_at IS NULL", id)
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachSections(ctx, []*types.Template{tpl}); err != nil {
		return nil, err
	}
	return tpl, nil
}

// GetByName returns the live template matching the name exactly, ignoring
// case. ErrNotFound when no live template carries the name.
func (r *TemplateRepository) GetByName(ctx context.Context, name string) (*types.Template, error) {
	if name == "" {
		return nil, types.ErrInvalidName
	}
	db, err := r.store.conn(ctx)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE name = ? COLLATE NOCASE AND deleted_at IS NULL", name)
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachSections(ctx, []*types.Template{tpl}); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Create inserts the template and all its sections in one transaction.
// A name colliding with a live template, ignoring case, is not an error:
// the new template is renamed with the lowest unused numeric suffix. The
// passed template is filled in place with ids, timestamps, the possibly
// adjusted name and a dense section order.
func (r *TemplateRepository) Create(ctx context.Context, tpl *types.Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}

	now := nowMillis()
	tpl.ID = newID()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	tpl.DeletedAt = nil

	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		taken, err := liveTemplateNames(ctx, tx, "")
		if err != nil {
			return err
		}
		tpl.Name = uniqueName(tpl.Name, taken)

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO templates (id, name, created_at, updated_at, deleted_at) VALUES (?, ?, ?, ?, NULL)",
			tpl.ID, tpl.Name, tpl.CreatedAt, tpl.UpdatedAt); err != nil {
			return fmt.Errorf("inserting template: %w", err)
		}
		return insertSections(ctx, tx, tpl.ID, tpl.Sections, now)
	})
}

// Update applies a partial patch. A supplied name is disambiguated against
// every other live template the same way Create does. A non-nil Sections
// replaces the entire section list: the old rows are deleted and the
// supplied ones reinserted with fresh ids and a dense order. updated_at
// always bumps.
func (r *TemplateRepository) Update(ctx context.Context, id string, patch types.TemplatePatch) error {
	if id == "" {
		return types.ErrInvalidID
	}
	if patch.Name != nil && *patch.Name == "" {
		return types.ErrInvalidName
	}
	if patch.Sections != nil {
		for i := range *patch.Sections {
			if (*patch.Sections)[i].Name == "" {
				return types.ErrInvalidName
			}
		}
	}

	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM templates WHERE id = ? AND deleted_at IS NULL", id).Scan(&one)
		if err == sql.ErrNoRows {
			return types.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking template: %w", err)
		}

		now := nowMillis()
		if patch.Name != nil {
			taken, err := liveTemplateNames(ctx, tx, id)
			if err != nil {
				return err
			}
			name := uniqueName(*patch.Name, taken)
			if _, err := tx.ExecContext(ctx,
				"UPDATE templates SET name = ?, updated_at = ? WHERE id = ?", name, now, id); err != nil {
				return fmt.Errorf("renaming template: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				"UPDATE templates SET updated_at = ? WHERE id = ?", now, id); err != nil {
				return fmt.Errorf("updating template: %w", err)
			}
		}

		if patch.Sections != nil {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM template_sections WHERE template_id = ?", id); err != nil {
				return fmt.Errorf("clearing template sections: %w", err)
			}
			if err := insertSections(ctx, tx, id, *patch.Sections, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete soft-deletes the template. Its name immediately becomes available
// to new templates; its sections stay in place for recipes that reference
// the template historically.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE templates SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
			nowMillis(), id)
		if err != nil {
			return fmt.Errorf("deleting template: %w", err)
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

// GetDefault returns the oldest live template, creating a starter template
// when the store has none. It never returns an empty result alongside a nil
// error.
func (r *TemplateRepository) GetDefault(ctx context.Context) (*types.Template, error) {
	db, err := r.store.conn(ctx)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE deleted_at IS NULL ORDER BY created_at ASC, rowid ASC LIMIT 1")
	tpl, err := scanTemplate(row)
	if err == nil {
		if err := r.attachSections(ctx, []*types.Template{tpl}); err != nil {
			return nil, err
		}
		return tpl, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	starter := &types.Template{
		Name:     DefaultTemplateName,
		Sections: []types.TemplateSection{{Name: "Instructions"}},
	}
	if err := r.Create(ctx, starter); err != nil {
		return nil, err
	}
	return starter, nil
}

// insertSections writes the section list with fresh ids and a dense order.
func insertSections(ctx context.Context, tx *sql.Tx, templateID string, sections []types.TemplateSection, now int64) error {
	for i := range sections {
		sec := &sections[i]
		sec.ID = newID()
		sec.TemplateID = templateID
		sec.OrderIndex = i
		sec.CreatedAt = now
		sec.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO template_sections (id, template_id, name, order_index, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			sec.ID, sec.TemplateID, sec.Name, sec.OrderIndex, sec.CreatedAt, sec.UpdatedAt); err != nil {
			return fmt.Errorf("inserting template section: %w", err)
		}
	}
	return nil
}

// liveTemplateNames collects the lowercased names of every live template,
// excluding the given id so an update does not collide with itself.
func liveTemplateNames(ctx context.Context, tx *sql.Tx, excludeID string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT name FROM templates WHERE deleted_at IS NULL AND id != ?", excludeID)
	if err != nil {
		return nil, fmt.Errorf("reading template names: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning template name: %w", err)
		}
		taken[strings.ToLower(name)] = true
	}
	return taken, rows.Err()
}

// uniqueName returns name unchanged when it is free, otherwise the name
// with the lowest numeric suffix, " (2)" upward, not yet taken. Lookups in
// taken are by lowercased key.
func uniqueName(name string, taken map[string]bool) string {
	if !taken[strings.ToLower(name)] {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !taken[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

func scanTemplate(src scanner) (*types.Template, error) {
	var tpl types.Template
	var deletedAt sql.NullInt64

	err := src.Scan(&tpl.ID, &tpl.Name, &tpl.CreatedAt, &tpl.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, classifyError(fmt.Errorf("scanning template: %w", err))
	}
	if deletedAt.Valid {
		tpl.DeletedAt = &deletedAt.Int64
	}
	return &tpl, nil
}
