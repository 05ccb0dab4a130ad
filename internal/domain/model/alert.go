//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// AlertKind distinguishes the notification shapes the dispatcher emits.
type AlertKind string

const (
	// AlertKindOpportunity is a single listing crossing the profitability bar.
	AlertKindOpportunity AlertKind = "opportunity"
	// AlertKindDigest is a periodic batch covering the top profitable pairs.
	AlertKindDigest AlertKind = "digest"
)

// Valid reports whether the alert kind is supported.
func (k AlertKind) Valid() bool {
	switch k {
	case AlertKindOpportunity, AlertKindDigest:
		return true
	default:
		return false
	}
}

// ParseAlertKind normalizes an alert kind string and reports whether it is supported.
func ParseAlertKind(value string) (AlertKind, bool) {
	k := AlertKind(strings.ToLower(strings.TrimSpace(value)))
	if k.Valid() {
		return k, true
	}
	return "", false
}

// AlertRecord is the append-only dedup log: one row per successfully sent
// notification. Suppression checks look for any record for the product
// inside the configured window.
type AlertRecord struct {
	ID        string    `json:"id"         db:"id"`
	ProductID string    `json:"product_id" db:"product_id"`
	AlertKind AlertKind `json:"alert_kind" db:"alert_kind"`
	SentAt    time.Time `json:"sent_at"    db:"sent_at"`
}

// Verdict is the profitability engine's classification of one
// marketplace-price / sourcing-price pair.
type Verdict struct {
	Profit        float64 `json:"profit"`
	MarginPercent float64 `json:"margin_percent"`
	IsProfitable  bool    `json:"is_profitable"`
}

// Opportunity ties a profitability verdict back to the product and listing
// it was computed for, ready for alert formatting.
type Opportunity struct {
	Product *Product `json:"product"`
	Listing *Listing `json:"listing"`
	Verdict Verdict  `json:"verdict"`
}
