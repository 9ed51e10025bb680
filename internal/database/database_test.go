package database

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"codform/internal/models"
)

func TestNewMigratesSQLite(t *testing.T) {
	t.Parallel()

	db, err := New("sqlite://file:migrate?mode=memory&cache=shared", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	order := models.Order{
		ShopDomain: "demo.myshopify.com",
		Phone:      "0612345678",
		Quantity:   2,
		Total:      decimal.RequireFromString("57.50"),
		Tags:       models.Tags{"cod", "form, popup"},
	}
	require.NoError(t, db.DB.Create(&order).Error)
	require.NotEmpty(t, order.ID)

	var got models.Order
	require.NoError(t, db.DB.First(&got, "id = ?", order.ID).Error)
	require.Equal(t, models.Tags{"cod", "form, popup"}, got.Tags)
	require.True(t, got.Total.Equal(decimal.RequireFromString("57.5")))
	require.Equal(t, models.OrderStatusPending, got.Status)
}
