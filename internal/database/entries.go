package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
)

const entryColumns = `
	id, user_id, product_url, user_email, name, image_url,
	original_price, discount_price, discount_available,
	check_interval_minutes, last_checked_at, last_notified_at,
	active, created_at, updated_at`

// EntryRepository handles persistence of monitored entries.
type EntryRepository struct {
	db *DB
}

func NewEntryRepository(db *DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// CreateEntry inserts a new monitored entry and fills the generated fields.
func (r *EntryRepository) CreateEntry(ctx context.Context, entry *models.MonitoredEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO monitored_entry (
			id, user_id, product_url, user_email,
			check_interval_minutes, active
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.pool.QueryRow(ctx, query,
		entry.ID, entry.UserID, entry.ProductURL, entry.UserEmail,
		entry.CheckIntervalMinutes, entry.Active,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	return nil
}

// GetEntry retrieves one entry scoped to its owner. Returns nil when the
// entry does not exist or belongs to another user.
func (r *EntryRepository) GetEntry(ctx context.Context, userID string, id uuid.UUID) (*models.MonitoredEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM monitored_entry
		WHERE id = $1 AND user_id = $2`

	entry, err := scanEntry(r.db.pool.QueryRow(ctx, query, id, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return entry, nil
}

// ListEntries returns all entries owned by a user, newest first.
func (r *EntryRepository) ListEntries(ctx context.Context, userID string) ([]*models.MonitoredEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM monitored_entry
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListActiveEntries returns every active entry across all users, oldest
// check first so starved entries go to the front of the sweep.
func (r *EntryRepository) ListActiveEntries(ctx context.Context) ([]*models.MonitoredEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM monitored_entry
		WHERE active = TRUE
		ORDER BY last_checked_at ASC NULLS FIRST`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// UpdateEntry applies the non-nil fields of update to an entry scoped to its
// owner. Returns the updated entry, or nil when not found.
func (r *EntryRepository) UpdateEntry(ctx context.Context, userID string, id uuid.UUID, update models.EntryUpdate) (*models.MonitoredEntry, error) {
	query := `
		UPDATE monitored_entry SET
			product_url = COALESCE($3, product_url),
			user_email = COALESCE($4, user_email),
			check_interval_minutes = COALESCE($5, check_interval_minutes),
			active = COALESCE($6, active),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2
		RETURNING ` + entryColumns

	entry, err := scanEntry(r.db.pool.QueryRow(ctx, query,
		id, userID,
		update.ProductURL, update.UserEmail,
		update.CheckIntervalMinutes, update.Active,
	))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}

	return entry, nil
}

// UpdateScrapedFields applies the result of a successful check in a single
// statement, so readers never observe a half-applied check.
func (r *EntryRepository) UpdateScrapedFields(ctx context.Context, id uuid.UUID, fields models.ScrapedFields) error {
	query := `
		UPDATE monitored_entry SET
			name = $2,
			image_url = COALESCE($3, image_url),
			original_price = COALESCE($4, original_price),
			discount_price = COALESCE($5, discount_price),
			discount_available = $6,
			last_checked_at = $7,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	result, err := r.db.pool.Exec(ctx, query,
		id, fields.Name, fields.ImageURL,
		fields.OriginalPrice, fields.DiscountPrice,
		fields.DiscountAvailable, fields.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scraped fields: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("entry not found: %s", id)
	}

	return nil
}

// StampLastChecked records a check attempt without touching product fields,
// used after a failed scrape so the entry still honors its interval.
func (r *EntryRepository) StampLastChecked(ctx context.Context, id uuid.UUID, checkedAt time.Time) error {
	query := `
		UPDATE monitored_entry SET
			last_checked_at = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	_, err := r.db.pool.Exec(ctx, query, id, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to stamp last checked: %w", err)
	}

	return nil
}

// StampLastNotified records a delivered availability notification.
func (r *EntryRepository) StampLastNotified(ctx context.Context, id uuid.UUID, notifiedAt time.Time) error {
	query := `
		UPDATE monitored_entry SET
			last_notified_at = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	_, err := r.db.pool.Exec(ctx, query, id, notifiedAt)
	if err != nil {
		return fmt.Errorf("failed to stamp last notified: %w", err)
	}

	return nil
}

// DeleteEntry removes an entry and its history rows via cascade. Returns
// false when the entry was not found for this user.
func (r *EntryRepository) DeleteEntry(ctx context.Context, userID string, id uuid.UUID) (bool, error) {
	result, err := r.db.pool.Exec(ctx,
		`DELETE FROM monitored_entry WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// CountEntries returns total and active entry counts.
func (r *EntryRepository) CountEntries(ctx context.Context) (total, active int64, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE active)
		FROM monitored_entry`

	if err := r.db.pool.QueryRow(ctx, query).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	return total, active, nil
}

func scanEntry(row pgx.Row) (*models.MonitoredEntry, error) {
	e := &models.MonitoredEntry{}
	err := row.Scan(
		&e.ID, &e.UserID, &e.ProductURL, &e.UserEmail, &e.Name, &e.ImageURL,
		&e.OriginalPrice, &e.DiscountPrice, &e.DiscountAvailable,
		&e.CheckIntervalMinutes, &e.LastCheckedAt, &e.LastNotifiedAt,
		&e.Active, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]*models.MonitoredEntry, error) {
	var entries []*models.MonitoredEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}
