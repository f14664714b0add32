package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bankmail/internal/model"
)

// EmailConfigRepository reads and checkpoints per-user email automation
// configurations.
type EmailConfigRepository struct {
	db *pgxpool.Pool
}

func NewEmailConfigRepository(db *pgxpool.Pool) *EmailConfigRepository {
	return &EmailConfigRepository{db: db}
}

const configColumns = `
        id,
        user_id,
        is_enabled,
        imap_server,
        imap_port,
        email_address,
        app_password,
        polling_interval,
        last_check_time,
        sample_emails
`

// ListEnabled returns every configuration with automation switched on.
func (r *EmailConfigRepository) ListEnabled(ctx context.Context) ([]model.EmailConfiguration, error) {
	query := `
        SELECT ` + configColumns + `
        FROM user_email_configurations
        WHERE is_enabled = TRUE
        ORDER BY user_id
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []model.EmailConfiguration
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// FindByUserID returns the user's configuration, or nil when none exists.
func (r *EmailConfigRepository) FindByUserID(ctx context.Context, userID int) (*model.EmailConfiguration, error) {
	query := `
        SELECT ` + configColumns + `
        FROM user_email_configurations
        WHERE user_id = $1
    `
	row := r.db.QueryRow(ctx, query, userID)
	c, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateLastCheckTime advances the user's processing checkpoint.
func (r *EmailConfigRepository) UpdateLastCheckTime(ctx context.Context, userID int, t time.Time) error {
	query := `
        UPDATE user_email_configurations
        SET last_check_time = $1, updated_at = $1
        WHERE user_id = $2
    `
	_, err := r.db.Exec(ctx, query, t, userID)
	return err
}

func scanConfig(row pgx.Row) (*model.EmailConfiguration, error) {
	var c model.EmailConfiguration
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.IsEnabled,
		&c.IMAPServer,
		&c.IMAPPort,
		&c.EmailAddress,
		&c.AppPassword,
		&c.PollingInterval,
		&c.LastCheckTime,
		&c.SampleEmails,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
