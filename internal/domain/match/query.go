// Package match builds the ordered search queries the matching crawler
// issues for a canonical product.
package match

import (
	"strings"

	"github.com/flipscout/flipscout/internal/domain/model"
)

const shortTitleTokenLimit = 6

// stopwords are dropped when shortening a title for search. The list covers
// filler common in marketplace listing titles.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "for": {}, "from": {}, "in": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "with": {},
	"new": {}, "pack": {}, "set": {},
}

// BuildQueries returns the search query strings for a product in priority
// order: universal code alone, universal code plus shortened title,
// marketplace ID, then the full title. Queries that would be empty or
// duplicates are skipped.
func BuildQueries(p *model.Product) []string {
	if p == nil {
		return nil
	}

	var queries []string
	seen := map[string]struct{}{}
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		if _, dup := seen[q]; dup {
			return
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}

	short := ShortenTitle(p.Title)
	if p.UniversalCode != nil {
		add(*p.UniversalCode)
		if short != "" {
			add(*p.UniversalCode + " " + short)
		}
	}
	add(p.MarketplaceID)
	add(p.Title)

	return queries
}

// ShortenTitle strips punctuation, removes stopwords, and truncates to the
// first six remaining tokens.
func ShortenTitle(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '\t', r == '\n':
			return ' '
		default:
			return ' '
		}
	}, title)

	var kept []string
	for _, tok := range strings.Fields(cleaned) {
		if _, skip := stopwords[strings.ToLower(tok)]; skip {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == shortTitleTokenLimit {
			break
		}
	}
	return strings.Join(kept, " ")
}
