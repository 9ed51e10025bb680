package widget

import (
	"context"

	"gorm.io/gorm"

	"codform/internal/models"
)

// ShopDirectory reports whether a shop is registered with the backend.
type ShopDirectory interface {
	Known(ctx context.Context, shop string) (bool, error)
}

// DBShops treats a shop as known once it has a published form or an admin
// registration.
type DBShops struct {
	db *gorm.DB
}

func NewDBShops(db *gorm.DB) *DBShops {
	return &DBShops{db: db}
}

func (d *DBShops) Known(ctx context.Context, shop string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.Form{}).Where("shop_domain = ?", shop).Count(&n).Error
	if err != nil || n > 0 {
		return n > 0, err
	}
	err = d.db.WithContext(ctx).Model(&models.Shop{}).Where("domain = ?", shop).Count(&n).Error
	return n > 0, err
}
