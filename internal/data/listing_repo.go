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

const listingColumns = `id, product_id, site_id, listing_url, price, in_stock, color, size, last_checked_at, created_at, updated_at`

// ListingRepo provides database operations for external listings and their
// append-only change history.
type ListingRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewListingRepo creates a new ListingRepo instance with the given database connection.
func NewListingRepo(db *sql.DB) *ListingRepo {
	return &ListingRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewListingRepoWithTimeProvider creates a ListingRepo with a custom TimeProvider (useful for testing).
func NewListingRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ListingRepo {
	return &ListingRepo{DB: db, timeProvider: tp}
}

// UpsertDiscovered inserts a newly discovered listing or refreshes an
// existing one keyed by (site_id, listing_url). A brand-new listing gets its
// first history event in the same transaction so no listing ever exists with
// zero history rows. Returns the listing and whether it was created.
func (r *ListingRepo) UpsertDiscovered(ctx context.Context, req *model.UpsertListingRequest) (*model.Listing, bool, error) {
	if req == nil {
		return nil, false, errors.New("upsert listing request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	now := r.timeProvider.Now().UTC()
	var listing model.Listing
	var created bool

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO listings (product_id, site_id, listing_url, price, in_stock, color, size, last_checked_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)
			ON CONFLICT (site_id, listing_url) DO UPDATE SET
				price = EXCLUDED.price,
				in_stock = EXCLUDED.in_stock,
				color = COALESCE(EXCLUDED.color, listings.color),
				size = COALESCE(EXCLUDED.size, listings.size),
				last_checked_at = EXCLUDED.last_checked_at,
				updated_at = EXCLUDED.updated_at
			RETURNING `+listingColumns+`, (xmax = 0) AS inserted`,
			req.ProductID, req.SiteID, req.ListingURL, req.Price, req.InStock, req.Color, req.Size, now,
		)
		if scanErr := scanListingWithInserted(row, &listing, &created); scanErr != nil {
			return fmt.Errorf("upsert listing: %w", scanErr)
		}

		if created {
			if _, histErr := tx.ExecContext(ctx, `
				INSERT INTO listing_history (listing_id, price, in_stock, recorded_at)
				VALUES ($1, $2, $3, $4)`,
				listing.ID, req.Price, req.InStock, now,
			); histErr != nil {
				return fmt.Errorf("append first history event: %w", histErr)
			}
		}
		return nil
	}})
	if err != nil {
		return nil, false, err
	}
	return &listing, created, nil
}

func scanListingWithInserted(row *sql.Row, l *model.Listing, created *bool) error {
	return row.Scan(
		&l.ID, &l.ProductID, &l.SiteID, &l.ListingURL, &l.Price, &l.InStock,
		&l.Color, &l.Size, &l.LastCheckedAt, &l.CreatedAt, &l.UpdatedAt, created,
	)
}

// GetByID retrieves a listing by its ID.
func (r *ListingRepo) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	var listing model.Listing
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, id)
		if err != nil {
			return err
		}
		defer rows.Close()

		listing, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Listing])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("get listing by id: %w", err)
	}
	return &listing, nil
}

// ListByProduct returns all listings tied to a product.
func (r *ListingRepo) ListByProduct(ctx context.Context, productID string) ([]*model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE product_id = $1 ORDER BY created_at ASC, id ASC`
	return r.collect(ctx, query, productID)
}

// ListForMonitoring returns listings ordered by the staleness of their last
// check, paged for batch processing in the monitoring cycle.
func (r *ListingRepo) ListForMonitoring(ctx context.Context, limit, offset int) ([]*model.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + listingColumns + ` FROM listings ORDER BY last_checked_at ASC, id ASC LIMIT $1 OFFSET $2`
	return r.collect(ctx, query, limit, offset)
}

func (r *ListingRepo) collect(ctx context.Context, query string, args ...any) ([]*model.Listing, error) {
	var listings []*model.Listing
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		listings, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Listing])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// ApplyObservationParams carries one monitoring observation to be persisted.
type ApplyObservationParams struct {
	ListingID  string
	Price      float64
	InStock    bool
	Material   bool
	ObservedAt time.Time
}

// ApplyObservation persists a monitoring observation. A material change
// updates the stored price/stock and appends a history event in one
// transaction; an immaterial one only advances last_checked_at, keeping the
// history an event log of changes rather than a full observation log.
func (r *ListingRepo) ApplyObservation(ctx context.Context, params ApplyObservationParams) error {
	observedAt := params.ObservedAt.UTC()
	if params.ObservedAt.IsZero() {
		observedAt = r.timeProvider.Now().UTC()
	}

	if !params.Material {
		res, err := r.DB.ExecContext(ctx,
			`UPDATE listings SET last_checked_at = $2 WHERE id = $1`,
			params.ListingID, observedAt,
		)
		if err != nil {
			return fmt.Errorf("touch listing check time: %w", err)
		}
		return requireAffected(res, ErrListingNotFound)
	}

	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE listings
			SET price = $2, in_stock = $3, last_checked_at = $4, updated_at = $4
			WHERE id = $1`,
			params.ListingID, params.Price, params.InStock, observedAt,
		)
		if err != nil {
			return fmt.Errorf("update listing state: %w", err)
		}
		if affErr := requireAffected(res, ErrListingNotFound); affErr != nil {
			return affErr
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO listing_history (listing_id, price, in_stock, recorded_at)
			VALUES ($1, $2, $3, $4)`,
			params.ListingID, params.Price, params.InStock, observedAt,
		); err != nil {
			return fmt.Errorf("append history event: %w", err)
		}
		return nil
	}})
}

// HistoryByListing returns history events for a listing, newest first.
func (r *ListingRepo) HistoryByListing(ctx context.Context, listingID string, limit int) ([]*model.ListingHistoryEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, listing_id, price, in_stock, recorded_at FROM listing_history WHERE listing_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`

	var events []*model.ListingHistoryEvent
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, listingID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		events, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.ListingHistoryEvent])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list listing history: %w", err)
	}
	return events, nil
}

// DeleteHistoryOlderThan prunes history events older than maxAge, at most
// batchSize rows per call. Returns the number of rows deleted.
func (r *ListingRepo) DeleteHistoryOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	cutoff := r.timeProvider.Now().UTC().Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM listing_history
		WHERE id IN (
			SELECT id FROM listing_history WHERE recorded_at < $1 LIMIT $2
		)`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old listing history: %w", err)
	}
	return res.RowsAffected()
}

func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
