// Package checkout is the order wire contract between the storefront
// runtime and the backend: the multipart create-order request, its JSON
// result and the client that carries both.
package checkout

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"codform/internal/services/shopify"
	"codform/internal/storefront/formconfig"
)

// Multipart field names of POST /api/create-order.
const (
	FieldShop           = "shop"
	FieldShippingMethod = "shipping_method"
	FieldShipping       = "shipping"
	FieldProduct        = "product"
	FieldVariantID      = "variantId"
	FieldQuantity       = "quantity"
	FieldTotals         = "totals"
	FieldConfig         = "config"
	FieldSubscribe      = "subscribe"
)

// CustomerFields are the input labels the backend maps onto the order.
var CustomerFields = []string{
	"first_name", "last_name", "address", "address_2", "city",
	"province", "phone_number", "zip_code", "email",
}

// Error codes carried in Result.Error.
const ErrorOrderBlocked = "order_blocked"

// Redirect types carried in Result.Redirect.Type.
const (
	RedirectMessage         = "message"
	RedirectThankYouMessage = "thankYouMessage"
	RedirectCustom          = "custom"
	RedirectWhatsApp        = "whatsapp"
	RedirectDefault         = "default"
)

// Totals are the amounts shown to the shopper at submit time, in major units.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency,omitempty"`
}

// Request is one order submission.
type Request struct {
	Shop           string
	Fields         map[string]string
	Subscribe      bool
	ShippingMethod string
	Shipping       *formconfig.ShippingRate
	Product        *shopify.StorefrontProduct
	VariantID      int64
	Quantity       int
	Totals         Totals
	Config         *formconfig.FormConfig
}

// Field returns a trimmed customer field.
func (r *Request) Field(label string) string {
	return strings.TrimSpace(r.Fields[label])
}

// Redirect tells the runtime what to do after a successful order.
type Redirect struct {
	Type            string `json:"type"`
	RedirectURL     string `json:"redirectURL,omitempty"`
	ThankYouMessage string `json:"thankYouMessage,omitempty"`
	OrderStatusURL  string `json:"orderStatusUrl,omitempty"`
}

// Result is the create-order response body.
type Result struct {
	Success  bool      `json:"success"`
	Redirect *Redirect `json:"redirect,omitempty"`
	Error    string    `json:"error,omitempty"`
	Message  string    `json:"message,omitempty"`
	OrderID  string    `json:"orderId,omitempty"`
}

// Blocked reports the fraud-prevention outcome.
func (r *Result) Blocked() bool {
	return r.Error == ErrorOrderBlocked
}

// WriteMultipart encodes r as create-order form fields.
func (r *Request) WriteMultipart(w *multipart.Writer) error {
	write := func(name, value string) error {
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
		return nil
	}
	writeJSON := func(name string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		return write(name, string(raw))
	}

	if err := write(FieldShop, r.Shop); err != nil {
		return err
	}
	for name, value := range r.Fields {
		if err := write(name, value); err != nil {
			return err
		}
	}
	if r.Subscribe {
		if err := write(FieldSubscribe, "true"); err != nil {
			return err
		}
	}
	if err := write(FieldShippingMethod, r.ShippingMethod); err != nil {
		return err
	}
	if err := writeJSON(FieldShipping, r.Shipping); err != nil {
		return err
	}
	if err := writeJSON(FieldProduct, r.Product); err != nil {
		return err
	}
	if err := write(FieldVariantID, strconv.FormatInt(r.VariantID, 10)); err != nil {
		return err
	}
	if err := write(FieldQuantity, strconv.Itoa(r.Quantity)); err != nil {
		return err
	}
	if err := writeJSON(FieldTotals, r.Totals); err != nil {
		return err
	}
	return writeJSON(FieldConfig, r.Config)
}

// ParseForm decodes a create-order submission. get returns the value of one
// form field ("" when absent); names lists every submitted field.
func ParseForm(get func(string) string, names []string) (*Request, error) {
	req := &Request{
		Shop:           strings.TrimSpace(get(FieldShop)),
		Fields:         make(map[string]string),
		Subscribe:      get(FieldSubscribe) == "true",
		ShippingMethod: get(FieldShippingMethod),
	}
	if req.Shop == "" {
		return nil, fmt.Errorf("missing %s", FieldShop)
	}

	reserved := map[string]bool{
		FieldShop: true, FieldShippingMethod: true, FieldShipping: true, FieldProduct: true,
		FieldVariantID: true, FieldQuantity: true, FieldTotals: true, FieldConfig: true, FieldSubscribe: true,
	}
	for _, name := range names {
		if !reserved[name] {
			req.Fields[name] = get(name)
		}
	}

	if raw := get(FieldVariantID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", FieldVariantID, err)
		}
		req.VariantID = id
	}
	req.Quantity = 1
	if raw := get(FieldQuantity); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil || q < 1 {
			return nil, fmt.Errorf("invalid %s %q", FieldQuantity, raw)
		}
		req.Quantity = q
	}

	decode := func(name string, v any) error {
		raw := strings.TrimSpace(get(name))
		if raw == "" || raw == "null" {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		return nil
	}
	if err := decode(FieldShipping, &req.Shipping); err != nil {
		return nil, err
	}
	if err := decode(FieldProduct, &req.Product); err != nil {
		return nil, err
	}
	if err := decode(FieldTotals, &req.Totals); err != nil {
		return nil, err
	}
	if err := decode(FieldConfig, &req.Config); err != nil {
		return nil, err
	}
	return req, nil
}
