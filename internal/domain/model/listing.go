//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
)

// Listing is an observed offering of a product on an external retail site.
type Listing struct {
	ID            string    `json:"id"              db:"id"`
	ProductID     string    `json:"product_id"      db:"product_id"`
	SiteID        string    `json:"site_id"         db:"site_id"`
	ListingURL    string    `json:"listing_url"     db:"listing_url"`
	Price         float64   `json:"price"           db:"price"`
	InStock       bool      `json:"in_stock"        db:"in_stock"`
	Color         *string   `json:"color,omitempty" db:"color"`
	Size          *string   `json:"size,omitempty"  db:"size"`
	LastCheckedAt time.Time `json:"last_checked_at" db:"last_checked_at"`
	CreatedAt     time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"      db:"updated_at"`
}

// ListingHistoryEvent is one append-only row per materially changed observation.
type ListingHistoryEvent struct {
	ID         string    `json:"id"          db:"id"`
	ListingID  string    `json:"listing_id"  db:"listing_id"`
	Price      float64   `json:"price"       db:"price"`
	InStock    bool      `json:"in_stock"    db:"in_stock"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// ListingFacts is the extraction engine's best-effort read of a product page.
// Any field the page did not yield is left nil; a facts record without a
// parsable price is unusable and dropped by the crawler.
type ListingFacts struct {
	SiteID     string
	ListingURL string
	Title      *string
	Price      *float64
	InStock    bool
	Color      *string
	Size       *string
	ImageURL   *string
}

// Usable reports whether the facts carry the minimum needed to persist a listing.
func (f *ListingFacts) Usable() bool {
	return f != nil && f.Price != nil && f.ListingURL != ""
}

// UpsertListingRequest carries the fields needed to insert or refresh a listing
// discovered by the matching crawler.
type UpsertListingRequest struct {
	ProductID  string
	SiteID     string
	ListingURL string
	Price      float64
	InStock    bool
	Color      *string
	Size       *string
}

// Validate validates UpsertListingRequest.
func (r *UpsertListingRequest) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return errors.New("product_id is required")
	}
	if strings.TrimSpace(r.SiteID) == "" {
		return errors.New("site_id is required")
	}
	if strings.TrimSpace(r.ListingURL) == "" {
		return errors.New("listing_url is required")
	}
	if r.Price < 0 {
		return errors.New("price cannot be negative")
	}
	return nil
}
