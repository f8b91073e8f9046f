package types

// Recipe is the root of the recipe aggregate. Ingredients and Sections are
// owned child rows; Tags carries the resolved tag names. All timestamps are
// integer milliseconds since the Unix epoch. A non-nil DeletedAt marks the
// recipe soft-deleted: excluded from default reads, physically retained.
type Recipe struct {
	ID              string
	Name            string
	CookTimeMinutes *int
	Servings        *int
	Favorite        bool
	ImageURL        *string
	ImageWidth      *int
	ImageHeight     *int
	CreatedAt       int64
	UpdatedAt       int64
	DeletedAt       *int64
	Ingredients     []Ingredient
	Sections        []InstructionSection
	Tags            []string
}

// Ingredient is one ordered ingredient row of a recipe. Amount and Unit are
// nullable: free-form ingredients ("a pinch of salt") carry only a name.
// OrderIndex is a dense ordering within the owning recipe.
type Ingredient struct {
	ID         string
	RecipeID   string
	Name       string
	Amount     *float64
	Unit       *string
	OrderIndex int
}

// InstructionSection is a named block of instructions. Content holds the
// steps as one newline-delimited text blob; splitting into individual steps
// is a presentation-layer concern.
type InstructionSection struct {
	ID        string
	RecipeID  string
	Name      string
	Content   string
	UpdatedAt int64
}

// Validate checks the fields a caller must supply before a create.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return ErrInvalidName
	}
	for i := range r.Ingredients {
		if r.Ingredients[i].Name == "" {
			return ErrInvalidName
		}
	}
	for i := range r.Sections {
		if r.Sections[i].Name == "" {
			return ErrInvalidName
		}
	}
	return nil
}

// RecipePatch describes a partial update. Nil fields are left untouched;
// the repository builds the column list from the fields that are set and
// always bumps updated_at.
type RecipePatch struct {
	Name            *string
	CookTimeMinutes *int
	Servings        *int
	Favorite        *bool
	ImageURL        *string
	ImageWidth      *int
	ImageHeight     *int
}

// IsZero reports whether the patch carries no fields.
func (p RecipePatch) IsZero() bool {
	return p.Name == nil && p.CookTimeMinutes == nil && p.Servings == nil &&
		p.Favorite == nil && p.ImageURL == nil && p.ImageWidth == nil &&
		p.ImageHeight == nil
}
