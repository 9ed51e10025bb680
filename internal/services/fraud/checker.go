// Package fraud decides whether a cash-on-delivery order may be accepted.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"codform/internal/logger"
	"codform/internal/models"
)

const DefaultBlockedMessage = "We could not accept this order. Please contact the store."

// Reasons carried by a Block.
const (
	ReasonBlockList  = "block_list"
	ReasonDailyLimit = "daily_limit"
)

// Block is the rejection returned for a blocked order. Message is shown to
// the shopper verbatim.
type Block struct {
	Reason  string
	Kind    models.BlockKind
	Value   string
	Message string
}

func (b *Block) Error() string {
	return fmt.Sprintf("order blocked (%s)", b.Reason)
}

// AsBlock unwraps a *Block from err.
func AsBlock(err error) (*Block, bool) {
	var b *Block
	if errors.As(err, &b) {
		return b, true
	}
	return nil, false
}

// Input identifies the customer placing an order.
type Input struct {
	Shop  string
	Phone string
	Email string
	IP    string
}

type Checker struct {
	db     *gorm.DB
	logger *logger.Logger
	now    func() time.Time
}

func NewChecker(db *gorm.DB, log *logger.Logger) *Checker {
	if log == nil {
		log = logger.Nop()
	}
	return &Checker{db: db, logger: log, now: time.Now}
}

// Check returns a *Block when the customer is on the shop's block list or
// has reached the form's daily order limit, nil when the order may go
// through, and any other error when the check itself failed.
func (c *Checker) Check(ctx context.Context, form *models.Form, in Input) error {
	message := DefaultBlockedMessage
	if form != nil && strings.TrimSpace(form.BlockedMessage) != "" {
		message = form.BlockedMessage
	}

	candidates := map[models.BlockKind]string{
		models.BlockKindPhone: NormalizePhone(in.Phone),
		models.BlockKindEmail: NormalizeEmail(in.Email),
		models.BlockKindIP:    strings.TrimSpace(in.IP),
	}
	for _, kind := range []models.BlockKind{models.BlockKindPhone, models.BlockKindEmail, models.BlockKindIP} {
		value := candidates[kind]
		if value == "" {
			continue
		}
		var n int64
		err := c.db.WithContext(ctx).Model(&models.BlockedCustomer{}).
			Where("shop_domain = ? AND kind = ? AND value = ?", in.Shop, kind, value).
			Count(&n).Error
		if err != nil {
			return fmt.Errorf("check block list: %w", err)
		}
		if n > 0 {
			return &Block{Reason: ReasonBlockList, Kind: kind, Value: value, Message: message}
		}
	}

	phone := candidates[models.BlockKindPhone]
	if form == nil || form.MaxOrdersPerPhonePerDay <= 0 || phone == "" {
		return nil
	}
	var recent int64
	err := c.db.WithContext(ctx).Model(&models.Order{}).
		Where("shop_domain = ? AND phone = ? AND created_at >= ?", in.Shop, phone, c.now().Add(-24*time.Hour)).
		Count(&recent).Error
	if err != nil {
		return fmt.Errorf("count recent orders: %w", err)
	}
	if recent >= int64(form.MaxOrdersPerPhonePerDay) {
		return &Block{Reason: ReasonDailyLimit, Kind: models.BlockKindPhone, Value: phone, Message: message}
	}
	return nil
}

// RecordHit bumps the hit counter of a matched block list entry.
func (c *Checker) RecordHit(ctx context.Context, shop string, kind models.BlockKind, value string) error {
	now := c.now()
	err := c.db.WithContext(ctx).Model(&models.BlockedCustomer{}).
		Where("shop_domain = ? AND kind = ? AND value = ?", shop, kind, value).
		Updates(map[string]interface{}{
			"hits":        gorm.Expr("hits + 1"),
			"last_hit_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("record block hit: %w", err)
	}
	return nil
}

// Add stores a block list entry, normalizing its value. Adding an existing
// entry updates its reason.
func (c *Checker) Add(ctx context.Context, entry *models.BlockedCustomer) error {
	switch entry.Kind {
	case models.BlockKindPhone:
		entry.Value = NormalizePhone(entry.Value)
	case models.BlockKindEmail:
		entry.Value = NormalizeEmail(entry.Value)
	case models.BlockKindIP:
		entry.Value = strings.TrimSpace(entry.Value)
	default:
		return fmt.Errorf("unknown block kind %q", entry.Kind)
	}
	if entry.Value == "" || entry.ShopDomain == "" {
		return fmt.Errorf("block entry needs a shop and a value")
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_domain"}, {Name: "kind"}, {Name: "value"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("add block entry: %w", err)
	}
	c.logger.Info("Blocked %s %s for %s", entry.Kind, entry.Value, entry.ShopDomain)
	return nil
}

// Remove deletes an entry of the shop. It reports whether one was deleted.
func (c *Checker) Remove(ctx context.Context, shop, id string) (bool, error) {
	res := c.db.WithContext(ctx).Where("shop_domain = ? AND id = ?", shop, id).Delete(&models.BlockedCustomer{})
	if res.Error != nil {
		return false, fmt.Errorf("remove block entry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (c *Checker) List(ctx context.Context, shop string) ([]models.BlockedCustomer, error) {
	var entries []models.BlockedCustomer
	err := c.db.WithContext(ctx).Where("shop_domain = ?", shop).Order("created_at desc").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list block entries: %w", err)
	}
	return entries, nil
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
