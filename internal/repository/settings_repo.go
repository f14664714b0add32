package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSettingNotFound is returned when a global configuration key does not
// exist.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsRepository reads the global_configurations key/value table. The
// extractor uses it to look up the LLM API token outside any web request
// context.
type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetValue returns a setting's raw value and whether it is stored
// encrypted.
func (r *SettingsRepository) GetValue(ctx context.Context, key string) (string, bool, error) {
	query := `
        SELECT value, is_encrypted
        FROM global_configurations
        WHERE key = $1
    `
	var value string
	var isEncrypted bool
	err := r.db.QueryRow(ctx, query, key).Scan(&value, &isEncrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, ErrSettingNotFound
	}
	if err != nil {
		return "", false, err
	}
	return value, isEncrypted, nil
}
