package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
)

// HistoryRepository handles the append-only check log and price time series.
type HistoryRepository struct {
	db *DB
}

func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendCheckRecord appends one check outcome to an entry's log.
func (r *HistoryRepository) AppendCheckRecord(ctx context.Context, record *models.CheckRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
		INSERT INTO check_history (
			id, entry_id, status, original_price, discount_price,
			discount_available, error_message, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.pool.Exec(ctx, query,
		record.ID, record.EntryID, record.Status,
		record.OriginalPrice, record.DiscountPrice,
		record.DiscountAvailable, record.ErrorMessage, record.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append check record: %w", err)
	}

	return nil
}

// AppendPriceSample appends one price point to an entry's time series.
func (r *HistoryRepository) AppendPriceSample(ctx context.Context, sample *models.PriceSample) error {
	if sample.ID == uuid.Nil {
		sample.ID = uuid.New()
	}

	query := `
		INSERT INTO price_history (
			id, entry_id, original_price, discount_price,
			discount_available, sampled_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.pool.Exec(ctx, query,
		sample.ID, sample.EntryID,
		sample.OriginalPrice, sample.DiscountPrice,
		sample.DiscountAvailable, sample.SampledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append price sample: %w", err)
	}

	return nil
}

// ListCheckRecords returns the most recent check records for an entry.
func (r *HistoryRepository) ListCheckRecords(ctx context.Context, entryID uuid.UUID, limit int) ([]*models.CheckRecord, error) {
	query := `
		SELECT id, entry_id, status, original_price, discount_price,
			discount_available, error_message, checked_at
		FROM check_history
		WHERE entry_id = $1
		ORDER BY checked_at DESC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, entryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check records: %w", err)
	}
	defer rows.Close()

	var records []*models.CheckRecord
	for rows.Next() {
		rec := &models.CheckRecord{}
		err := rows.Scan(
			&rec.ID, &rec.EntryID, &rec.Status,
			&rec.OriginalPrice, &rec.DiscountPrice,
			&rec.DiscountAvailable, &rec.ErrorMessage, &rec.CheckedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// ListPriceSamples returns the most recent price samples for an entry.
func (r *HistoryRepository) ListPriceSamples(ctx context.Context, entryID uuid.UUID, limit int) ([]*models.PriceSample, error) {
	query := `
		SELECT id, entry_id, original_price, discount_price,
			discount_available, sampled_at
		FROM price_history
		WHERE entry_id = $1
		ORDER BY sampled_at DESC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, entryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list price samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.PriceSample
	for rows.Next() {
		s := &models.PriceSample{}
		err := rows.Scan(
			&s.ID, &s.EntryID,
			&s.OriginalPrice, &s.DiscountPrice,
			&s.DiscountAvailable, &s.SampledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return samples, nil
}
