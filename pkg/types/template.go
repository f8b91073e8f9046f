package types

// Template is a reusable recipe skeleton. It owns an ordered list of
// sections. Template names are unique ignoring case among live templates;
// the repository auto-renames collisions with a numeric suffix.
type Template struct {
	ID        string
	Name      string
	CreatedAt int64
	UpdatedAt int64
	DeletedAt *int64
	Sections  []TemplateSection
}

// TemplateSection is one ordered, named section of a template. Section
// names are unique ignoring case within their template. OrderIndex is a
// dense ordering within the owning template.
type TemplateSection struct {
	ID         string
	TemplateID string
	Name       string
	OrderIndex int
	CreatedAt  int64
	UpdatedAt  int64
}

// Validate checks the fields a caller must supply before a create.
func (t *Template) Validate() error {
	if t.Name == "" {
		return ErrInvalidName
	}
	for i := range t.Sections {
		if t.Sections[i].Name == "" {
			return ErrInvalidName
		}
	}
	return nil
}

// TemplatePatch describes a partial update. A nil Name leaves the name
// untouched. A nil Sections leaves the section list untouched; a non-nil
// Sections (even pointing at an empty slice) replaces the entire list:
// existing sections are deleted and the supplied ones reinserted with fresh
// ids and a dense order. Callers that want to rename one section must
// resend the whole list.
type TemplatePatch struct {
	Name     *string
	Sections *[]TemplateSection
}
