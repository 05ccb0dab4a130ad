package extract

import (
	"strconv"
	"strings"
	"unicode"
)

// ParsePrice normalizes raw price text by stripping everything except digits
// and the decimal point, then parsing the first numeric token. Unparsable
// text yields nil rather than an error; the caller discards priceless facts.
func ParsePrice(text string) *float64 {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) || r == '.' {
			b.WriteRune(r)
			continue
		}
		// A non-numeric rune after digits ends the first numeric token,
		// except separators commonly embedded in prices.
		if b.Len() > 0 && r != ',' {
			break
		}
	}

	token := strings.Trim(b.String(), ".")
	if token == "" {
		return nil
	}

	// Keep only the first decimal point: "1.234.56" style input parses as 1.234.
	if i := strings.Index(token, "."); i >= 0 {
		rest := strings.ReplaceAll(token[i+1:], ".", "")
		token = token[:i+1] + rest
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
