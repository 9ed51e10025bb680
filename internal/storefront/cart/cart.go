// Package cart guards the storefront cart API against overlapping writes.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"codform/internal/logger"
	"codform/internal/services/shopify"
)

// ErrBusy is returned when another cart call is still in flight. The call
// is dropped, not queued; callers re-read the cart afterwards.
var ErrBusy = errors.New("cart: update already in progress")

// API is the subset of the storefront client the manager needs.
type API interface {
	Cart(ctx context.Context) (*shopify.Cart, error)
	AddToCart(ctx context.Context, lines []shopify.CartLine) (*shopify.CartAddResult, error)
	UpdateCart(ctx context.Context, updates map[int64]int) (*shopify.Cart, error)
	ClearCart(ctx context.Context) (*shopify.Cart, error)
}

// Manager serializes cart calls through a single in-flight flag. Any error
// means the cart state is unknown.
type Manager struct {
	api        API
	logger     *logger.Logger
	isUpdating atomic.Bool
}

func NewManager(api API, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{api: api, logger: log}
}

// IsUpdating reports whether a call is in flight.
func (m *Manager) IsUpdating() bool {
	return m.isUpdating.Load()
}

func (m *Manager) acquire(op string) error {
	if !m.isUpdating.CompareAndSwap(false, true) {
		m.logger.Debug("cart: %s dropped, another call is in flight", op)
		return ErrBusy
	}
	return nil
}

func (m *Manager) release() {
	m.isUpdating.Store(false)
}

func (m *Manager) GetCart(ctx context.Context) (*shopify.Cart, error) {
	if err := m.acquire("get"); err != nil {
		return nil, err
	}
	defer m.release()

	c, err := m.api.Cart(ctx)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return c, nil
}

// AddToCart adds quantity units of a variant with optional line properties.
func (m *Manager) AddToCart(ctx context.Context, variantID int64, quantity int, properties map[string]string) (*shopify.CartAddResult, error) {
	if variantID == 0 {
		return nil, fmt.Errorf("add to cart: missing variant id")
	}
	if quantity < 1 {
		quantity = 1
	}
	if err := m.acquire("add"); err != nil {
		return nil, err
	}
	defer m.release()

	res, err := m.api.AddToCart(ctx, []shopify.CartLine{{
		ID:         variantID,
		Quantity:   quantity,
		Properties: properties,
	}})
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}
	return res, nil
}

// UpdateCart sets the quantity of a variant's line; 0 removes it.
func (m *Manager) UpdateCart(ctx context.Context, variantID int64, quantity int) (*shopify.Cart, error) {
	if variantID == 0 {
		return nil, fmt.Errorf("update cart: missing variant id")
	}
	if quantity < 0 {
		quantity = 0
	}
	if err := m.acquire("update"); err != nil {
		return nil, err
	}
	defer m.release()

	c, err := m.api.UpdateCart(ctx, map[int64]int{variantID: quantity})
	if err != nil {
		return nil, fmt.Errorf("update cart: %w", err)
	}
	return c, nil
}

// SwapVariant moves the line from one variant to another in a single
// update: the old line is zeroed and the new one set to quantity.
func (m *Manager) SwapVariant(ctx context.Context, fromID, toID int64, quantity int) (*shopify.Cart, error) {
	if fromID == 0 || toID == 0 {
		return nil, fmt.Errorf("swap variant: missing variant id")
	}
	if fromID == toID {
		return m.UpdateCart(ctx, toID, quantity)
	}
	if quantity < 0 {
		quantity = 0
	}
	if err := m.acquire("swap"); err != nil {
		return nil, err
	}
	defer m.release()

	c, err := m.api.UpdateCart(ctx, map[int64]int{fromID: 0, toID: quantity})
	if err != nil {
		return nil, fmt.Errorf("swap variant: %w", err)
	}
	return c, nil
}

func (m *Manager) ClearCart(ctx context.Context) (*shopify.Cart, error) {
	if err := m.acquire("clear"); err != nil {
		return nil, err
	}
	defer m.release()

	c, err := m.api.ClearCart(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return c, nil
}
