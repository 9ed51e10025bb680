package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"codform/internal/logger"
	"codform/internal/services/shopify"
	"codform/internal/storefront/formconfig"
)

var (
	ErrUnknownVariant  = errors.New("variant is not sold by this product")
	ErrUnknownShipping = errors.New("shipping method is not offered by this form")
)

// Catalog is the product lookup pricing needs.
type Catalog interface {
	Product(ctx context.Context, handle string) (*shopify.StorefrontProduct, error)
}

// CatalogFactory returns the public catalog of a shop.
type CatalogFactory func(shop string) Catalog

// StorefrontCatalogs reads prices from the shop's public product endpoint.
func StorefrontCatalogs(scheme string, log *logger.Logger) CatalogFactory {
	if scheme == "" {
		scheme = "https"
	}
	return func(shop string) Catalog {
		return shopify.NewStorefrontClient(scheme+"://"+shop, log)
	}
}

// Pricer prices submitted order lines from the shop's own catalog so the
// stored totals never depend on what the shopper's browser claimed.
type Pricer struct {
	catalogs CatalogFactory
}

func NewPricer(catalogs CatalogFactory) *Pricer {
	return &Pricer{catalogs: catalogs}
}

// Subtotal returns the variant's unit price times quantity.
func (p *Pricer) Subtotal(ctx context.Context, shop, handle string, variantID int64, quantity int) (decimal.Decimal, error) {
	if strings.TrimSpace(handle) == "" {
		return decimal.Zero, fmt.Errorf("%w: missing product handle", ErrUnknownVariant)
	}
	if quantity < 1 {
		quantity = 1
	}
	product, err := p.catalogs(shop).Product(ctx, handle)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load product %s: %w", handle, err)
	}
	variant := product.Variant(variantID)
	if variant == nil {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownVariant, variantID)
	}
	return decimal.New(variant.Price, -2).Mul(decimal.NewFromInt(int64(quantity))), nil
}

// ResolveShipping finds the configured rate with the given id. A form
// without rates ships for free and ignores the id.
func ResolveShipping(rates []formconfig.ShippingRate, id string) (*formconfig.ShippingRate, error) {
	if len(rates) == 0 {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	for i := range rates {
		if rates[i].ID.String() == id {
			rate := rates[i]
			if rate.Price.IsNegative() {
				return nil, fmt.Errorf("%w: %s has a negative price", ErrUnknownShipping, id)
			}
			return &rate, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownShipping, id)
}
