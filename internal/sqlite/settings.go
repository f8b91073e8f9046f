package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ovenbird/larder/pkg/types"
)

// GetSetting returns the setting stored under key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (*types.Setting, error) {
	if key == "" {
		return nil, types.ErrInvalidID
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var setting types.Setting
	err = db.QueryRowContext(ctx,
		"SELECT key, value_json, updated_at FROM settings WHERE key = ?", key).
		Scan(&setting.Key, &setting.ValueJSON, &setting.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, classifyError(fmt.Errorf("reading setting %q: %w", key, err))
	}
	return &setting, nil
}

// SetSetting upserts the JSON value under key and bumps updated_at.
func (s *Store) SetSetting(ctx context.Context, key, valueJSON string) error {
	if key == "" {
		return types.ErrInvalidID
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO settings (key, value_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`,
		key, valueJSON, nowMillis())
	if err != nil {
		return classifyError(fmt.Errorf("writing setting %q: %w", key, err))
	}
	return nil
}
