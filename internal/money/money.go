// Package money holds the minor-unit amount arithmetic shared by the
// settlement paths. Amounts are int64 cents; percentages are basis points.
package money

import "fmt"

// Amount is an amount of money in minor units (cents).
type Amount = int64

// PercentOf returns round-half-up(amount * bps / 10000). Used for commission
// cuts and the 50% refund band.
func PercentOf(amount Amount, bps int64) Amount {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + 5000) / 10000
}

// FormatMajor renders a minor-unit amount as a decimal string ("7500" -> "75.00").
func FormatMajor(amount Amount) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
