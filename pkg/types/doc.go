// Package types defines the Larder domain model: recipes, templates, tags,
// settings, the patch structures used for partial updates, and the standard
// error values shared by every storage layer.
package types
