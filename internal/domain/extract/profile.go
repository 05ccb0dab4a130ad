package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldRule maps one logical field to a CSS selector and, optionally, an
// attribute to read instead of the element text.
type FieldRule struct {
	Selector string `json:"selector"`
	Attr     string `json:"attr,omitempty"`
}

// SiteProfile maps the logical listing fields to per-site lookup rules.
// Missing rules simply yield absent fields; extraction is best-effort.
type SiteProfile struct {
	Title FieldRule `json:"title"`
	Price FieldRule `json:"price"`
	Stock FieldRule `json:"stock"`
	Image FieldRule `json:"image"`
	Color FieldRule `json:"color"`
	Size  FieldRule `json:"size"`
}

// ProfileSet holds per-domain profiles plus the fallback used when no
// domain matches.
type ProfileSet struct {
	Default SiteProfile            `json:"default"`
	Sites   map[string]SiteProfile `json:"sites"`
}

// DefaultProfileSet returns a generic profile set that works against common
// product-page markup. Per-site overrides are layered on via configuration.
func DefaultProfileSet() ProfileSet {
	return ProfileSet{
		Default: SiteProfile{
			Title: FieldRule{Selector: "h1"},
			Price: FieldRule{Selector: `[itemprop="price"], .price, .product-price`},
			Stock: FieldRule{Selector: `[itemprop="availability"], .availability, .stock-status`},
			Image: FieldRule{Selector: `img[itemprop="image"], .product-image img`, Attr: "src"},
			Color: FieldRule{Selector: `[itemprop="color"], .product-color`},
			Size:  FieldRule{Selector: `[itemprop="size"], .product-size`},
		},
		Sites: map[string]SiteProfile{},
	}
}

// ParseProfileSet decodes a JSON profile set, layering it over the defaults.
// An empty input returns the defaults unchanged.
func ParseProfileSet(raw string) (ProfileSet, error) {
	set := DefaultProfileSet()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return set, nil
	}
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return ProfileSet{}, fmt.Errorf("parse site profiles: %w", err)
	}
	if set.Sites == nil {
		set.Sites = map[string]SiteProfile{}
	}
	return set, nil
}

// Resolve returns the profile for a host by exact suffix match against the
// configured site domains, falling back to the default profile.
func (s ProfileSet) Resolve(host string) SiteProfile {
	host = strings.ToLower(strings.TrimSpace(host))
	for domain, profile := range s.Sites {
		d := strings.ToLower(strings.TrimSpace(domain))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return profile
		}
	}
	return s.Default
}
