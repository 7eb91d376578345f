package repository

import (
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// SettingsRepository handles the generic key/value settings table
type SettingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sql.DB, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the value for a key; found is false when the key is absent
func (r *SettingsRepository) Get(key string) (value string, found bool, err error) {
	err = r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		r.logger.Error("Failed to get setting", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

// Set stores a value under a key, creating or replacing it
func (r *SettingsRepository) Set(key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`
	if _, err := r.db.Exec(query, key, value); err != nil {
		r.logger.Error("Failed to set setting", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// NextRotationIndex performs the read-increment-write for a group's rotation
// cursor in a single transaction and returns the selected index. The cursor
// defaults to -1 when absent, so the first call selects index 0.
func (r *SettingsRepository) NextRotationIndex(tx *sql.Tx, group string, candidateCount int) (int, error) {
	if candidateCount <= 0 {
		return 0, fmt.Errorf("candidate count must be positive")
	}

	key := RotationCursorKey(group)

	last := -1
	var value string
	err := tx.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		// first rotation for this group
	case err != nil:
		return 0, fmt.Errorf("failed to read rotation cursor: %w", err)
	default:
		if parsed, perr := strconv.Atoi(value); perr == nil {
			last = parsed
		}
	}

	next := (last + 1) % candidateCount

	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`
	if _, err := tx.Exec(query, key, strconv.Itoa(next)); err != nil {
		return 0, fmt.Errorf("failed to persist rotation cursor: %w", err)
	}

	return next, nil
}

// RotationCursorKey builds the settings key holding a group's last-used
// rotation index.
func RotationCursorKey(group string) string {
	return "rotation_cursor_" + group
}
