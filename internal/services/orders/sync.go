// Package orders mirrors captured cash-on-delivery orders into the shop's
// admin as pending orders.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"codform/internal/logger"
	"codform/internal/models"
	"codform/internal/services/shopify"
)

var ErrNoAdminAccess = errors.New("shop has no admin access token")

// AdminAPI is the admin call the syncer needs.
type AdminAPI interface {
	CreateOrder(ctx context.Context, input shopify.OrderInput) (*shopify.AdminOrder, error)
}

// ClientFactory returns the admin client for a shop.
type ClientFactory func(shop *models.Shop) AdminAPI

// DefaultClientFactory talks to the real admin API.
func DefaultClientFactory(log *logger.Logger) ClientFactory {
	return func(shop *models.Shop) AdminAPI {
		return shopify.NewAdminClient(shop.Domain, shop.AccessToken, log)
	}
}

type Syncer struct {
	db        *gorm.DB
	logger    *logger.Logger
	newClient ClientFactory
}

func NewSyncer(db *gorm.DB, newClient ClientFactory, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	return &Syncer{db: db, newClient: newClient, logger: log}
}

// Sync creates the platform order for orderID. Orders already synced are
// left alone, so redelivered events are harmless. A failed call marks the
// order FAILED and is returned.
func (s *Syncer) Sync(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.Status == models.OrderStatusSynced {
		return &order, nil
	}

	var shop models.Shop
	if err := s.db.WithContext(ctx).First(&shop, "domain = ?", order.ShopDomain).Error; err != nil {
		return nil, fmt.Errorf("load shop %s: %w", order.ShopDomain, err)
	}
	if !shop.HasAdminAccess() {
		return &order, ErrNoAdminAccess
	}

	created, err := s.newClient(&shop).CreateOrder(ctx, OrderInput(&order))
	if err != nil {
		s.logger.Error("Failed to sync order %s to %s: %v", order.ID, shop.Domain, err)
		updateErr := s.db.WithContext(ctx).Model(&order).Updates(map[string]interface{}{
			"status":     models.OrderStatusFailed,
			"sync_error": truncate(err.Error(), 500),
		}).Error
		if updateErr != nil {
			s.logger.Error("Failed to mark order %s failed: %v", order.ID, updateErr)
		}
		return &order, fmt.Errorf("create platform order: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&order).Updates(map[string]interface{}{
		"status":              models.OrderStatusSynced,
		"platform_order_id":   created.ID,
		"platform_order_name": created.Name,
		"order_status_url":    created.OrderStatusURL,
		"sync_error":          "",
	}).Error
	if err != nil {
		return &order, fmt.Errorf("save synced order: %w", err)
	}
	order.Status = models.OrderStatusSynced
	order.PlatformOrderID = created.ID
	order.PlatformOrderName = created.Name
	order.OrderStatusURL = created.OrderStatusURL
	order.SyncError = ""
	s.logger.Info("Synced order %s as %s", order.ID, created.Name)
	return &order, nil
}

// OrderInput maps a captured order onto the admin order payload.
func OrderInput(o *models.Order) shopify.OrderInput {
	in := shopify.OrderInput{
		Email:                 o.Email,
		Phone:                 o.Phone,
		FinancialStatus:       "pending",
		Gateway:               "Cash on Delivery (COD)",
		Tags:                  strings.Join(o.Tags, ", "),
		SendReceipt:           o.Email != "",
		BuyerAcceptsMarketing: o.Subscribe,
		LineItems: []shopify.OrderLineItem{{
			VariantID: o.VariantID,
			Quantity:  o.Quantity,
		}},
		ShippingAddress: &shopify.Address{
			FirstName: o.FirstName,
			LastName:  o.LastName,
			Address1:  o.Address,
			Address2:  o.Address2,
			City:      o.City,
			Province:  o.Province,
			Zip:       o.Zip,
			Phone:     o.Phone,
		},
	}
	if o.DiscountCode != "" {
		in.Note = "Discount code: " + o.DiscountCode
	}
	if o.ShippingMethod != "" {
		in.ShippingLines = []shopify.ShippingLine{{
			Title: o.ShippingMethod,
			Price: o.ShippingPrice.StringFixed(2),
		}}
	}
	return in
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
