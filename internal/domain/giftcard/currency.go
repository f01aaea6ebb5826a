package giftcard

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency renders an amount in minor units for display. Currencies
// whose code starts with "XX" are points-like and print the raw number.
// Whole amounts drop the cents, e.g. 2500 -> "$25", 200000024 -> "$2,000,000.24".
func FormatCurrency(value int64, currency string) string {
	if strings.HasPrefix(strings.ToUpper(currency), "XX") {
		return strconv.FormatInt(value, 10)
	}

	amount := decimal.New(value, -2)
	var s string
	if amount.IsInteger() {
		s = amount.StringFixed(0)
	} else {
		s = amount.StringFixed(2)
	}

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	out := sign + "$" + groupThousands(whole)
	if hasFrac {
		out += "." + frac
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
