package types

// Tag is a globally unique label, case-insensitive on name. Tags are
// resolved by name during recipe creation and shared across recipes via
// the recipe_tags join table.
type Tag struct {
	ID   string
	Name string
}
