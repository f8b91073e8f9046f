package types

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRecipeValidate(t *testing.T) {
	tests := []struct {
		name    string
		recipe  Recipe
		wantErr error
	}{
		{"valid", Recipe{Name: "Pancakes"}, nil},
		{"missing name", Recipe{}, ErrInvalidName},
		{"nameless ingredient", Recipe{Name: "Pancakes", Ingredients: []Ingredient{{}}}, ErrInvalidName},
		{"nameless section", Recipe{Name: "Pancakes", Sections: []InstructionSection{{Content: "x"}}}, ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.recipe.Validate()
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTemplateValidate(t *testing.T) {
	valid := Template{Name: "Baking", Sections: []TemplateSection{{Name: "Prep"}}}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid template rejected: %v", err)
	}

	missing := Template{}
	if err := missing.Validate(); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}

	badSection := Template{Name: "Baking", Sections: []TemplateSection{{}}}
	if err := badSection.Validate(); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for nameless section, got %v", err)
	}
}

func TestRecipePatchIsZero(t *testing.T) {
	if !(RecipePatch{}).IsZero() {
		t.Error("empty patch should be zero")
	}
	name := "x"
	if (RecipePatch{Name: &name}).IsZero() {
		t.Error("patch with a field should not be zero")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); !errors.Is(err, ErrDataDirEmpty) {
		t.Errorf("expected ErrDataDirEmpty, got %v", err)
	}
	if err := (Config{DataDir: "/data"}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestConfigDatabasePath(t *testing.T) {
	cfg := Config{DataDir: "/data"}
	want := filepath.Join("/data", DatabaseFileName)
	if got := cfg.DatabasePath(); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
}
