package detector

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Handle extracts the product handle from a page path such as
// /products/linen-shirt or /collections/summer/products/linen-shirt.
func Handle(path string) string {
	_, rest, ok := strings.Cut(path, "/products/")
	if !ok {
		return ""
	}
	handle, _, _ := strings.Cut(rest, "/")
	return strings.TrimSuffix(handle, ".js")
}

// ParsePrice reads a displayed price ("$1,299.00", "19,99 €", "Rs. 45")
// into minor units.
func ParsePrice(text string) (int64, bool) {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	raw := strings.Trim(b.String(), ".,")
	if raw == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")
	sep := byte(0)
	switch {
	case lastDot >= 0 && lastComma >= 0:
		sep = raw[max(lastDot, lastComma)]
	case lastComma >= 0 && len(raw)-lastComma-1 == 2:
		sep = ','
	case lastDot >= 0 && len(raw)-lastDot-1 != 3:
		sep = '.'
	}

	var whole, frac string
	if sep != 0 {
		i := strings.LastIndexByte(raw, sep)
		whole, frac = raw[:i], raw[i+1:]
	} else {
		whole = raw
	}
	whole = strings.NewReplacer(",", "", ".", "").Replace(whole)
	if whole == "" {
		whole = "0"
	}
	amount, err := decimal.NewFromString(whole + "." + frac + "0")
	if err != nil {
		return 0, false
	}
	return amount.Shift(2).Round(0).IntPart(), true
}
