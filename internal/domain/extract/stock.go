package extract

import "strings"

// Phrase lists for stock classification. Matching is case-insensitive
// substring matching; out-of-stock phrases are checked first and win ties.
var (
	outOfStockPhrases = []string{
		"out of stock",
		"sold out",
		"unavailable",
		"no longer available",
		"currently not available",
		"backordered",
	}

	inStockPhrases = []string{
		"in stock",
		"add to cart",
		"add to bag",
		"buy now",
		"ships",
		"available",
	}
)

// ClassifyStock maps availability text to an in-stock boolean. Text matching
// no phrase list is treated as out-of-stock: a listing we cannot positively
// confirm should never be surfaced as buyable.
func ClassifyStock(text string) bool {
	t := strings.ToLower(text)

	for _, phrase := range outOfStockPhrases {
		if strings.Contains(t, phrase) {
			return false
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}
