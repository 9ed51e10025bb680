package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RedirectType string

const (
	RedirectMessage  RedirectType = "message"
	RedirectCustom   RedirectType = "custom"
	RedirectWhatsApp RedirectType = "whatsapp"
	RedirectDefault  RedirectType = "default"
)

// Form is a shop's published order form. Config and Shipping hold the JSON
// documents served by the public config endpoint as-is.
type Form struct {
	ID         string `json:"id" gorm:"type:varchar(36);primaryKey"`
	ShopDomain string `json:"shop_domain" gorm:"uniqueIndex;not null"`
	Config     string `json:"config" gorm:"type:text"`
	Shipping   string `json:"shipping" gorm:"type:text"`

	// What the storefront does after a successful order.
	RedirectType     RedirectType `json:"redirect_type" gorm:"default:message"`
	RedirectURL      string       `json:"redirect_url"`
	ThankYouMessage  string       `json:"thank_you_message"`
	WhatsAppNumber   string       `json:"whatsapp_number" gorm:"column:whatsapp_number"`
	WhatsAppTemplate string       `json:"whatsapp_template" gorm:"column:whatsapp_template"`

	// Fraud prevention. Zero disables the daily limit.
	MaxOrdersPerPhonePerDay int    `json:"max_orders_per_phone_per_day"`
	BlockedMessage          string `json:"blocked_message"`

	CreatePlatformOrder bool      `json:"create_platform_order"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (f *Form) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}
