package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"codform/internal/services/shopify"
	"codform/internal/storefront/formconfig"
)

func TestCreateOrderRoundTripsMultipart(t *testing.T) {
	t.Parallel()

	var got *Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/create-order", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		names := make([]string, 0, len(r.MultipartForm.Value))
		for name := range r.MultipartForm.Value {
			names = append(names, name)
		}
		var err error
		got, err = ParseForm(r.FormValue, names)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(Result{Success: true, Redirect: &Redirect{Type: RedirectMessage}})
	}))
	defer srv.Close()

	rate := formconfig.ShippingRate{ID: "2", Name: "Express", Price: decimal.RequireFromString("7.5")}
	res, err := NewClient(srv.URL).CreateOrder(context.Background(), &Request{
		Shop:           "demo.myshopify.com",
		Fields:         map[string]string{"first_name": "Sam", "phone_number": "0600000000"},
		Subscribe:      true,
		ShippingMethod: "2",
		Shipping:       &rate,
		Product:        &shopify.StorefrontProduct{ID: 1, Title: "Tee"},
		VariantID:      101,
		Quantity:       2,
		Totals:         Totals{Subtotal: decimal.NewFromInt(40), Shipping: rate.Price, Total: decimal.RequireFromString("47.5"), Currency: "USD"},
		Config:         &formconfig.FormConfig{FormType: formconfig.FormTypePopup},
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Equal(t, "demo.myshopify.com", got.Shop)
	require.Equal(t, "Sam", got.Field("first_name"))
	require.True(t, got.Subscribe)
	require.Equal(t, int64(101), got.VariantID)
	require.Equal(t, 2, got.Quantity)
	require.Equal(t, "Express", got.Shipping.Name)
	require.True(t, got.Totals.Total.Equal(decimal.RequireFromString("47.5")))
	require.Equal(t, formconfig.FormTypePopup, got.Config.FormType)
	require.NotContains(t, got.Fields, FieldTotals)
}

func TestCreateOrderDecodesBlockedRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"error":"order_blocked","message":"Too many orders"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).CreateOrder(context.Background(), &Request{Shop: "demo.myshopify.com"})
	require.NoError(t, err)
	require.True(t, res.Blocked())
	require.Equal(t, "Too many orders", res.Message)
}

func TestCreateOrderFailsOnUnreadableError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateOrder(context.Background(), &Request{Shop: "demo.myshopify.com"})
	require.ErrorContains(t, err, "status 502")
}

func TestFormConfig(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "demo.myshopify.com", r.URL.Query().Get("shop"))
		_, _ = w.Write([]byte(`{"form":{"formType":"popup","fields":[]},"shipping":[{"id":1,"name":"Std","price":0}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).FormConfig(context.Background(), "demo.myshopify.com")
	require.NoError(t, err)
	require.Equal(t, formconfig.FormTypePopup, resp.Form.FormType)
	require.Len(t, resp.Shipping, 1)

	_, err = NewClient("http://127.0.0.1:1").FormConfig(context.Background(), "x")
	require.Error(t, err)
}

func TestParseFormRejectsBadQuantity(t *testing.T) {
	t.Parallel()

	values := map[string]string{FieldShop: "demo", FieldQuantity: "zero"}
	_, err := ParseForm(func(k string) string { return values[k] }, nil)
	require.Error(t, err)

	_, err = ParseForm(func(string) string { return "" }, nil)
	require.Error(t, err)
}
