// Package data provides PostgreSQL-backed repositories for the arbitrage
// pipeline's entities.
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

const productColumns = `id, marketplace_id, universal_code, title, marketplace_price, marketplace_fees, price_checked_at, created_at, updated_at`

// ProductRepo provides database operations for canonical products.
type ProductRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProductRepo creates a new ProductRepo instance with the given database connection.
func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewProductRepoWithTimeProvider creates a ProductRepo with a custom TimeProvider (useful for testing).
func NewProductRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ProductRepo {
	return &ProductRepo{DB: db, timeProvider: tp}
}

// Upsert inserts or refreshes a product keyed by marketplace_id. Ingestion
// of the same tuple twice is a no-op apart from updated_at.
func (r *ProductRepo) Upsert(ctx context.Context, req *model.IngestProductRequest) (*model.Product, error) {
	if req == nil {
		return nil, errors.New("ingest product request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	query := `
		INSERT INTO products (marketplace_id, universal_code, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (marketplace_id) DO UPDATE SET
			universal_code = COALESCE(EXCLUDED.universal_code, products.universal_code),
			title = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE products.title END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + productColumns

	var product model.Product
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, req.MarketplaceID, req.UniversalCode, req.Title, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		product, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Product])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert product: %w", err)
	}
	return &product, nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*model.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// GetByMarketplaceID retrieves a product by its marketplace identity key.
func (r *ProductRepo) GetByMarketplaceID(ctx context.Context, marketplaceID string) (*model.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE marketplace_id = $1`, marketplaceID)
}

func (r *ProductRepo) getOne(ctx context.Context, query string, arg any) (*model.Product, error) {
	var product model.Product
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()

		product, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Product])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

// List returns products ordered by creation time, paged.
func (r *ProductRepo) List(ctx context.Context, limit, offset int) ([]*model.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`

	var products []*model.Product
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		products, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Product])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// SetPricingParams carries a pricing-oracle answer to be cached on a product.
type SetPricingParams struct {
	ProductID string
	Price     float64
	Fees      float64
	CheckedAt time.Time
}

// SetPricing caches the marketplace price and fees on the product row.
func (r *ProductRepo) SetPricing(ctx context.Context, params SetPricingParams) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE products
		SET marketplace_price = $2, marketplace_fees = $3, price_checked_at = $4, updated_at = $5
		WHERE id = $1`,
		params.ProductID, params.Price, params.Fees, params.CheckedAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("set product pricing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Touch bumps updated_at, recording that the crawler revisited the product.
func (r *ProductRepo) Touch(ctx context.Context, id string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `UPDATE products SET updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("touch product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
