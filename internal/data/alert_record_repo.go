package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flipscout/flipscout/internal/data/pgxutil"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/jackc/pgx/v5"
)

const alertRecordColumns = `id, product_id, alert_kind, sent_at`

// AlertRecordRepo provides database operations for the append-only alert
// dedup log.
type AlertRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAlertRecordRepo creates a new AlertRecordRepo instance with the given database connection.
func NewAlertRecordRepo(db *sql.DB) *AlertRecordRepo {
	return &AlertRecordRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewAlertRecordRepoWithTimeProvider creates an AlertRecordRepo with a custom TimeProvider (useful for testing).
func NewAlertRecordRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *AlertRecordRepo {
	return &AlertRecordRepo{DB: db, timeProvider: tp}
}

// Create appends one record for a successfully sent notification.
func (r *AlertRecordRepo) Create(ctx context.Context, productID string, kind model.AlertKind) (*model.AlertRecord, error) {
	if productID == "" {
		return nil, errors.New("product id is required")
	}
	if !kind.Valid() {
		return nil, errors.New("invalid alert kind")
	}

	now := r.timeProvider.Now().UTC()
	query := `
		INSERT INTO alert_records (product_id, alert_kind, sent_at)
		VALUES ($1, $2, $3)
		RETURNING ` + alertRecordColumns

	var record model.AlertRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, productID, kind, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		record, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AlertRecord])
		return err
	})
	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("create alert record: %w", err)
	}
	return &record, nil
}

// ExistsSince reports whether any alert record for the product exists at or
// after the given instant. The dedup key is the product, not the listing.
func (r *AlertRecordRepo) ExistsSince(ctx context.Context, productID string, since time.Time) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM alert_records WHERE product_id = $1 AND sent_at >= $2)`,
		productID, since.UTC(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check alert records: %w", err)
	}
	return exists, nil
}

// ListByProduct returns alert records for a product, newest first.
func (r *AlertRecordRepo) ListByProduct(ctx context.Context, productID string, limit int) ([]*model.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + alertRecordColumns + ` FROM alert_records WHERE product_id = $1 ORDER BY sent_at DESC, id DESC LIMIT $2`

	var records []*model.AlertRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, productID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		records, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.AlertRecord])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list alert records: %w", err)
	}
	return records, nil
}

// DeleteOlderThan prunes records older than maxAge, at most batchSize rows
// per call. Returns the number of rows deleted.
func (r *AlertRecordRepo) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	cutoff := r.timeProvider.Now().UTC().Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM alert_records
		WHERE id IN (
			SELECT id FROM alert_records WHERE sent_at < $1 LIMIT $2
		)`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old alert records: %w", err)
	}
	return res.RowsAffected()
}
