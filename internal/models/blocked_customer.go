package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BlockKind string

const (
	BlockKindPhone BlockKind = "PHONE"
	BlockKindEmail BlockKind = "EMAIL"
	BlockKindIP    BlockKind = "IP"
)

// BlockedCustomer is one block list entry of a shop.
type BlockedCustomer struct {
	ID         string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	ShopDomain string     `json:"shop_domain" gorm:"uniqueIndex:idx_block_entry;not null"`
	Kind       BlockKind  `json:"kind" gorm:"uniqueIndex:idx_block_entry;not null"`
	Value      string     `json:"value" gorm:"uniqueIndex:idx_block_entry;not null"`
	Reason     string     `json:"reason"`
	Hits       int        `json:"hits" gorm:"default:0"`
	LastHitAt  *time.Time `json:"last_hit_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (b *BlockedCustomer) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{&Shop{}, &Form{}, &Order{}, &BlockedCustomer{}}
}
