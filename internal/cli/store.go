// Store opening for the larder CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/ovenbird/larder/internal/sqlite"
	"github.com/ovenbird/larder/pkg/types"
)

// openStore resolves directories, creates the data directory and returns a
// Store on the database file. The schema is not touched; callers run
// EnsureSchema and RunMigrations themselves.
func openStore() (*sqlite.Store, error) {
	_, dataDir, err := resolveDirs()
	if err != nil {
		return nil, err
	}

	cfg := types.Config{DataDir: dataDir}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	return sqlite.NewStore(cfg.DatabasePath()), nil
}
