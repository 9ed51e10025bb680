package formconfig

import "strings"

// Shortcodes recognised in merchant text.
const (
	ShortcodeProductName   = "{product_name}"
	ShortcodeFirstName     = "{first_name}"
	ShortcodeOrderTotal    = "{order_total}"
	ShortcodeOrderSubtotal = "{order_subtotal}"
)

// ShortcodeValues are the substitutions available at format time.
type ShortcodeValues struct {
	ProductName   string
	FirstName     string
	OrderTotal    string
	OrderSubtotal string
}

// Expand replaces every known shortcode by plain string substitution.
func Expand(text string, v ShortcodeValues) string {
	if !strings.Contains(text, "{") {
		return text
	}
	return strings.NewReplacer(
		ShortcodeProductName, v.ProductName,
		ShortcodeFirstName, v.FirstName,
		ShortcodeOrderTotal, v.OrderTotal,
		ShortcodeOrderSubtotal, v.OrderSubtotal,
	).Replace(text)
}

// UnescapeNewlines turns literal "\n" sequences stored by the admin into
// real line breaks.
func UnescapeNewlines(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}
