package types

import (
	"errors"
	"path/filepath"
)

// DatabaseFileName is the single on-device file holding every table.
const DatabaseFileName = "larder.db"

// Config holds the storage parameters used to open a Store.
type Config struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// ErrDataDirEmpty is returned by Validate when no data directory is set.
var ErrDataDirEmpty = errors.New("data directory must not be empty")

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}
	return nil
}

// DatabasePath returns the full path of the database file inside DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DatabaseFileName)
}
