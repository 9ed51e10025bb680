package shopify

import (
	"encoding/json"
	"time"
)

// StorefrontProduct is the payload of /products/:handle.js. Prices are in
// minor units.
type StorefrontProduct struct {
	ID        int64               `json:"id"`
	Title     string              `json:"title"`
	Handle    string              `json:"handle"`
	Vendor    string              `json:"vendor,omitempty"`
	Price     int64               `json:"price"`
	Available bool                `json:"available"`
	Variants  []StorefrontVariant `json:"variants"`
	Options   []ProductOption     `json:"options,omitempty"`
	Images    []string            `json:"images,omitempty"`
	// Synthetic marks a product scraped from page markup after the product
	// endpoint failed.
	Synthetic bool `json:"synthetic,omitempty"`
}

// StorefrontVariant is one purchasable variant of a StorefrontProduct.
type StorefrontVariant struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Price     int64    `json:"price"`
	Available bool     `json:"available"`
	SKU       string   `json:"sku,omitempty"`
	Options   []string `json:"options"`
	Option1   *string  `json:"option1,omitempty"`
	Option2   *string  `json:"option2,omitempty"`
	Option3   *string  `json:"option3,omitempty"`
}

// ProductOption accepts both the object form ({"name": "Size", ...}) and
// the bare option name some themes still serve.
type ProductOption struct {
	Name     string   `json:"name"`
	Position int      `json:"position,omitempty"`
	Values   []string `json:"values,omitempty"`
}

func (o *ProductOption) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		o.Name = name
		return nil
	}
	type plain ProductOption
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = ProductOption(p)
	return nil
}

// Variant returns the variant with the given id.
func (p *StorefrontProduct) Variant(id int64) *StorefrontVariant {
	if p == nil {
		return nil
	}
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// Cart mirrors /cart.js.
type Cart struct {
	Token      string     `json:"token"`
	Note       string     `json:"note,omitempty"`
	ItemCount  int        `json:"item_count"`
	TotalPrice int64      `json:"total_price"`
	Currency   string     `json:"currency,omitempty"`
	Items      []CartItem `json:"items"`
}

type CartItem struct {
	ID         int64             `json:"id"`
	VariantID  int64             `json:"variant_id"`
	ProductID  int64             `json:"product_id"`
	Title      string            `json:"title"`
	Quantity   int               `json:"quantity"`
	Price      int64             `json:"price"`
	LinePrice  int64             `json:"line_price"`
	Properties map[string]string `json:"properties,omitempty"`
}

// CartLine is one entry posted to /cart/add.js.
type CartLine struct {
	ID         int64             `json:"id"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

// CartAddResult is the /cart/add.js response.
type CartAddResult struct {
	Items []CartItem `json:"items"`
}

// OrderInput is the admin REST order created for a cash-on-delivery form.
type OrderInput struct {
	Email                 string          `json:"email,omitempty"`
	Phone                 string          `json:"phone,omitempty"`
	FinancialStatus       string          `json:"financial_status"`
	Gateway               string          `json:"gateway,omitempty"`
	Tags                  string          `json:"tags,omitempty"`
	Note                  string          `json:"note,omitempty"`
	SendReceipt           bool            `json:"send_receipt"`
	LineItems             []OrderLineItem `json:"line_items"`
	ShippingAddress       *Address        `json:"shipping_address,omitempty"`
	ShippingLines         []ShippingLine  `json:"shipping_lines,omitempty"`
	BuyerAcceptsMarketing bool            `json:"buyer_accepts_marketing"`
}

type OrderLineItem struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	Province  string `json:"province,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Phone     string `json:"phone"`
	Country   string `json:"country,omitempty"`
}

type ShippingLine struct {
	Title string `json:"title"`
	Price string `json:"price"`
	Code  string `json:"code,omitempty"`
}

// AdminOrder is the subset of the admin order resource we keep.
type AdminOrder struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	OrderStatusURL string    `json:"order_status_url"`
	TotalPrice     string    `json:"total_price"`
	CreatedAt      time.Time `json:"created_at"`
}

// Shop represents shop information
type Shop struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Domain          string `json:"domain"`
	Currency        string `json:"currency"`
	MoneyFormat     string `json:"money_format"`
	MyshopifyDomain string `json:"myshopify_domain"`
	IanaTimezone    string `json:"iana_timezone"`
}

// WebhookOrder is the part of an orders/* webhook payload the service reads.
type WebhookOrder struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	FinancialStatus string     `json:"financial_status"`
	CancelledAt     *time.Time `json:"cancelled_at"`
}
