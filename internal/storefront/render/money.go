package render

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"CAD": "$",
	"AUD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"TRY": "₺",
}

// FormatMoney renders an amount in major units, e.g. "$1,234.50". Unknown
// currencies are suffixed with their code ("120.00 MAD").
func FormatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	places := int32(2)
	if currency == "JPY" {
		places = 0
	}

	neg := amount.IsNegative()
	fixed := amount.Abs().StringFixed(places)
	whole, frac, _ := strings.Cut(fixed, ".")
	body := thousandSep(whole)
	if frac != "" {
		body += "." + frac
	}

	sign := ""
	if neg {
		sign = "-"
	}
	if sym, ok := currencySymbols[currency]; ok {
		return sign + sym + body
	}
	return sign + body + " " + currency
}

func thousandSep(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	for i, c := range s {
		if i != 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Totals is the computed price summary shown in the form.
type Totals struct {
	Subtotal  decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal
	Currency  string
	FreeLabel string
}

func (t Totals) SubtotalText() string { return FormatMoney(t.Subtotal, t.Currency) }
func (t Totals) TotalText() string    { return FormatMoney(t.Total, t.Currency) }

// ShippingText renders a zero shipping cost with the configured free label.
func (t Totals) ShippingText() string {
	return ShippingPriceText(t.Shipping, t.Currency, t.FreeLabel)
}

// ShippingPriceText is ShippingText for an arbitrary rate.
func ShippingPriceText(price decimal.Decimal, currency, freeLabel string) string {
	if price.IsZero() {
		if freeLabel == "" {
			return "Free"
		}
		return freeLabel
	}
	return FormatMoney(price, currency)
}
