//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const maxProductTitleLen = 512

// Product is a canonical marketplace product tracked for arbitrage.
// MarketplacePrice and MarketplaceFees act as a cache of the pricing
// oracle's answers; PriceCheckedAt records when that cache was filled so
// profitability evaluation can refresh stale entries.
type Product struct {
	ID               string     `json:"id"                          db:"id"`
	MarketplaceID    string     `json:"marketplace_id"              db:"marketplace_id"`
	UniversalCode    *string    `json:"universal_code,omitempty"    db:"universal_code"`
	Title            string     `json:"title"                       db:"title"`
	MarketplacePrice *float64   `json:"marketplace_price,omitempty" db:"marketplace_price"`
	MarketplaceFees  *float64   `json:"marketplace_fees,omitempty"  db:"marketplace_fees"`
	PriceCheckedAt   *time.Time `json:"price_checked_at,omitempty"  db:"price_checked_at"`
	CreatedAt        time.Time  `json:"created_at"                  db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"                  db:"updated_at"`
}

// HasPricing reports whether both marketplace price and fees are cached.
func (p *Product) HasPricing() bool {
	return p.MarketplacePrice != nil && p.MarketplaceFees != nil
}

// PricingStale reports whether the cached pricing is absent or older than maxAge
// relative to now. A zero maxAge means the cache never expires.
func (p *Product) PricingStale(now time.Time, maxAge time.Duration) bool {
	if !p.HasPricing() {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	if p.PriceCheckedAt == nil {
		return true
	}
	return now.Sub(*p.PriceCheckedAt) > maxAge
}

// IngestProductRequest carries one tuple from the external input list.
// Ingestion is an idempotent upsert keyed by MarketplaceID.
type IngestProductRequest struct {
	MarketplaceID string  `json:"marketplace_id"`
	UniversalCode *string `json:"universal_code,omitempty"`
	Title         string  `json:"title"`
}

// Normalize trims whitespace from all fields and drops an empty universal code.
func (r *IngestProductRequest) Normalize() {
	r.MarketplaceID = strings.TrimSpace(r.MarketplaceID)
	r.Title = strings.TrimSpace(r.Title)
	if r.UniversalCode != nil {
		code := strings.TrimSpace(*r.UniversalCode)
		if code == "" {
			r.UniversalCode = nil
		} else {
			r.UniversalCode = &code
		}
	}
}

// Validate validates IngestProductRequest.
func (r *IngestProductRequest) Validate() error {
	if r.MarketplaceID == "" {
		return errors.New("marketplace_id is required")
	}
	if utf8.RuneCountInString(r.Title) > maxProductTitleLen {
		return errors.New("title cannot exceed 512 characters")
	}
	return nil
}
