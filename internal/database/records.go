package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/shelf-price-scraper/internal/models"
)

// RecordRepository stores extracted price records. A record is unique per
// key and capture time, so replaying a batch is harmless.
type RecordRepository struct {
	db *DB
}

func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const insertRecordSQL = `
	INSERT INTO price_record (
		run_id, source, record_key, external_id, name, brand,
		current_price, previous_price, packaging_text, unit_price, unit_base,
		category, promo_label, promo_until, available, image_ref, detail_url,
		captured_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
	)
	ON CONFLICT (record_key, captured_at) DO UPDATE SET
		current_price  = EXCLUDED.current_price,
		previous_price = EXCLUDED.previous_price,
		unit_price     = EXCLUDED.unit_price,
		unit_base      = EXCLUDED.unit_base,
		available      = EXCLUDED.available`

// InsertBatchWithTx writes records within tx and returns the number of rows
// affected.
func (r *RecordRepository) InsertBatchWithTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, records []models.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i := range records {
		batch.Queue(insertRecordSQL, recordArgs(runID, &records[i])...)
	}

	results := tx.SendBatch(ctx, batch)
	var affected int64
	for i := range records {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return affected, fmt.Errorf("failed to insert record %s: %w", records[i].Key(), err)
		}
		affected += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return affected, fmt.Errorf("failed to close batch: %w", err)
	}
	return affected, nil
}

// Latest returns the most recently captured records of a source.
func (r *RecordRepository) Latest(ctx context.Context, source string, limit int) ([]models.Record, error) {
	query := `
		SELECT source, external_id, name, brand, current_price::float8,
			previous_price::float8, packaging_text, unit_price::float8, unit_base,
			category, promo_label, promo_until, available, image_ref, detail_url,
			captured_at
		FROM price_record
		WHERE source = $1
		ORDER BY captured_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			rec                                           models.Record
			externalID, brand, packaging, unitBase        *string
			category, promoLabel, promoUntil, image, link *string
		)
		err := rows.Scan(
			&rec.Source, &externalID, &rec.Name, &brand, &rec.CurrentPrice,
			&rec.PreviousPrice, &packaging, &rec.UnitPrice, &unitBase,
			&category, &promoLabel, &promoUntil, &rec.Available, &image, &link,
			&rec.CapturedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.ExternalID = deref(externalID)
		rec.Brand = deref(brand)
		rec.PackagingText = deref(packaging)
		rec.UnitBase = deref(unitBase)
		rec.Category = deref(category)
		rec.PromoLabel = deref(promoLabel)
		rec.PromoUntil = deref(promoUntil)
		rec.ImageRef = deref(image)
		rec.DetailURL = deref(link)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func recordArgs(runID uuid.UUID, rec *models.Record) []any {
	capturedAt := rec.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	return []any{
		runID,
		rec.Source,
		rec.Key(),
		nullable(rec.ExternalID),
		rec.Name,
		nullable(rec.Brand),
		rec.CurrentPrice,
		rec.PreviousPrice,
		nullable(rec.PackagingText),
		rec.UnitPrice,
		nullable(rec.UnitBase),
		nullable(rec.Category),
		nullable(rec.PromoLabel),
		nullable(rec.PromoUntil),
		rec.Available,
		nullable(rec.ImageRef),
		nullable(rec.DetailURL),
		capturedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
