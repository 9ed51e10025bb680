package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"codform/internal/services/shopify"
	"codform/internal/storefront/formconfig"
)

type catalog map[string]*shopify.StorefrontProduct

func (c catalog) Product(_ context.Context, handle string) (*shopify.StorefrontProduct, error) {
	if p, ok := c[handle]; ok {
		return p, nil
	}
	return nil, errors.New("not found")
}

func TestPricerSubtotal(t *testing.T) {
	t.Parallel()

	var shops []string
	p := NewPricer(func(shop string) Catalog {
		shops = append(shops, shop)
		return catalog{"tee": {Handle: "tee", Variants: []shopify.StorefrontVariant{{ID: 1, Price: 1250}}}}
	})
	ctx := context.Background()

	sub, err := p.Subtotal(ctx, "a.myshopify.com", "tee", 1, 3)
	require.NoError(t, err)
	require.True(t, sub.Equal(decimal.RequireFromString("37.5")))
	require.Equal(t, []string{"a.myshopify.com"}, shops)

	sub, err = p.Subtotal(ctx, "a.myshopify.com", "tee", 1, 0)
	require.NoError(t, err)
	require.True(t, sub.Equal(decimal.RequireFromString("12.5")), "quantity is at least one")

	_, err = p.Subtotal(ctx, "a.myshopify.com", "tee", 2, 1)
	require.ErrorIs(t, err, ErrUnknownVariant)
	_, err = p.Subtotal(ctx, "a.myshopify.com", "", 1, 1)
	require.ErrorIs(t, err, ErrUnknownVariant)
	_, err = p.Subtotal(ctx, "a.myshopify.com", "missing", 1, 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownVariant)
}

func TestResolveShipping(t *testing.T) {
	t.Parallel()

	rates := []formconfig.ShippingRate{
		{ID: "1", Name: "Standard", Price: decimal.NewFromInt(5)},
		{ID: "2", Name: "Broken", Price: decimal.NewFromInt(-1)},
	}

	rate, err := ResolveShipping(rates, " 1 ")
	require.NoError(t, err)
	require.Equal(t, "Standard", rate.Name)

	_, err = ResolveShipping(rates, "99")
	require.ErrorIs(t, err, ErrUnknownShipping)
	_, err = ResolveShipping(rates, "")
	require.ErrorIs(t, err, ErrUnknownShipping)
	_, err = ResolveShipping(rates, "2")
	require.ErrorIs(t, err, ErrUnknownShipping)

	rate, err = ResolveShipping(nil, "99")
	require.NoError(t, err)
	require.Nil(t, rate, "forms without rates ship free")
}
