package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusSynced  OrderStatus = "SYNCED"
	OrderStatusFailed  OrderStatus = "FAILED"
)

// Order is a cash-on-delivery order captured by the storefront form.
type Order struct {
	ID         string      `json:"id" gorm:"type:varchar(36);primaryKey"`
	ShopDomain string      `json:"shop_domain" gorm:"index;not null"`
	Status     OrderStatus `json:"status" gorm:"default:PENDING;index"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone" gorm:"index"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zip       string `json:"zip_code"`
	IP        string `json:"ip"`
	Subscribe bool   `json:"subscribe"`

	ProductID      int64           `json:"product_id"`
	ProductTitle   string          `json:"product_title"`
	VariantID      int64           `json:"variant_id"`
	Quantity       int             `json:"quantity"`
	ShippingMethod string          `json:"shipping_method"`
	ShippingPrice  decimal.Decimal `json:"shipping_price" gorm:"type:decimal(12,2)"`
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2)"`
	Total          decimal.Decimal `json:"total" gorm:"type:decimal(12,2)"`
	Currency       string          `json:"currency" gorm:"default:USD"`
	DiscountCode   string          `json:"discount_code"`
	Tags           Tags            `json:"tags"`

	PlatformOrderID   int64  `json:"platform_order_id"`
	PlatformOrderName string `json:"platform_order_name"`
	OrderStatusURL    string `json:"order_status_url"`
	// PlatformStatus mirrors order webhooks: "paid" or "cancelled".
	PlatformStatus string `json:"platform_status"`
	SyncError      string `json:"sync_error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// Tags is a postgres text[]; other dialects store the same array literal in
// a text column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	return pq.StringArray(t).Value()
}

func (t *Tags) Scan(src interface{}) error {
	return (*pq.StringArray)(t).Scan(src)
}

func (Tags) GormDataType() string {
	return "text"
}

func (Tags) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}
