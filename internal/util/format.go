package util //nolint:revive // package name util hosts shared formatting helpers used across alert templates

import "fmt"

// FormatMoney renders a dollar amount for display, keeping the sign outside
// the currency symbol ("-$1.50", not "$-1.50").
func FormatMoney(amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("-$%.2f", -amount)
	}
	return fmt.Sprintf("$%.2f", amount)
}

// FormatPercent renders a percentage with one decimal for display.
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}
