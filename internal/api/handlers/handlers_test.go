package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"codform/internal/config"
	"codform/internal/events"
	"codform/internal/logger"
	"codform/internal/models"
	"codform/internal/services/fraud"
	"codform/internal/services/orders"
	"codform/internal/services/shopify"
	"codform/internal/storefront/checkout"
	"codform/internal/storefront/formconfig"
)

const shop = "demo.myshopify.com"

const formDoc = `{"formType": "embedded", "title": "Order", "fields": [
  {"id": 1, "type": "input", "label": "first_name", "displayLabel": "First name", "required": true}
]}`

type fakeAdmin struct{ calls int }

func (f *fakeAdmin) CreateOrder(context.Context, shopify.OrderInput) (*shopify.AdminOrder, error) {
	f.calls++
	return &shopify.AdminOrder{ID: 5001, Name: "#1001", OrderStatusURL: "https://demo.example/status/5001"}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) Product(_ context.Context, handle string) (*shopify.StorefrontProduct, error) {
	if handle != "linen-shirt" {
		return nil, errors.New("product not found")
	}
	return &shopify.StorefrontProduct{
		ID:       7,
		Title:    "Linen Shirt",
		Handle:   "linen-shirt",
		Price:    2000,
		Variants: []shopify.StorefrontVariant{{ID: 101, Price: 2000, Available: true}},
	}, nil
}

type fixture struct {
	db     *gorm.DB
	router *gin.Engine
	events *events.Recorder
	admin  *fakeAdmin
	cfg    *config.Config
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	f := &fixture{
		db:     db,
		events: &events.Recorder{},
		admin:  &fakeAdmin{},
		cfg:    &config.Config{Env: "test", ShopifyAPISecret: "s3cret"},
	}
	log := logger.Nop()
	checker := fraud.NewChecker(db, log)
	syncer := orders.NewSyncer(db, func(*models.Shop) orders.AdminAPI { return f.admin }, log)

	pricer := orders.NewPricer(func(string) orders.Catalog { return fakeCatalog{} })

	public := NewPublicHandler(db, log, checker, f.events, syncer, pricer)
	forms := NewFormHandler(db, log)
	blocklist := NewBlocklistHandler(checker, log)
	webhooks := NewShopifyHandler(db, log, f.cfg)

	r := gin.New()
	r.GET("/api/public-form-config", public.FormConfig)
	r.POST("/api/create-order", public.CreateOrder)
	r.GET("/api/v1/forms/:shop", forms.Get)
	r.PUT("/api/v1/forms/:shop", forms.Put)
	r.PUT("/api/v1/shops/:shop", forms.PutShop)
	r.GET("/api/v1/blocklist", blocklist.List)
	r.POST("/api/v1/blocklist", blocklist.Create)
	r.DELETE("/api/v1/blocklist/:id", blocklist.Delete)
	r.POST("/api/v1/shopify/webhook", webhooks.Webhook)
	f.router = r
	return f
}

func (f *fixture) seedForm(t *testing.T, form models.Form) {
	t.Helper()
	form.ShopDomain = shop
	if form.Config == "" {
		form.Config = formDoc
	}
	if form.Shipping == "" {
		form.Shipping = `[{"id": 1, "name": "Standard", "price": 5}]`
	}
	require.NoError(t, f.db.Create(&form).Error)
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) order(t *testing.T, phone string, edits ...func(*checkout.Request)) (*httptest.ResponseRecorder, checkout.Result) {
	t.Helper()
	order := &checkout.Request{
		Shop:           shop,
		Fields:         map[string]string{"first_name": "Sam", "phone_number": phone},
		ShippingMethod: "1",
		Shipping:       &formconfig.ShippingRate{ID: "1", Name: "Standard", Price: decimal.NewFromInt(5)},
		Product:        &shopify.StorefrontProduct{ID: 7, Title: "Linen Shirt", Handle: "linen-shirt"},
		VariantID:      101,
		Quantity:       2,
		Totals:         checkout.Totals{Subtotal: decimal.NewFromInt(40), Shipping: decimal.NewFromInt(5), Total: decimal.NewFromInt(45), Currency: "USD"},
	}
	for _, edit := range edits {
		edit(order)
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, order.WriteMultipart(w))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/create-order", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var result checkout.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return rec, result
}

func TestPublicFormConfig(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/api/public-form-config?shop="+shop, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	f.seedForm(t, models.Form{})
	rec = f.do(t, http.MethodGet, "/api/public-form-config?shop=demo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp, err := formconfig.Parse(rec.Body.Bytes())
	require.NoError(t, err, "the reply decodes with the storefront decoder")
	require.Equal(t, "Order", resp.Form.Title)
	require.Len(t, resp.Shipping, 1)
}

func TestCreateOrderPersistsAndPublishes(t *testing.T) {
	f := setup(t)
	f.seedForm(t, models.Form{ThankYouMessage: "Thanks!", CreatePlatformOrder: true})

	rec, result := f.order(t, "+1 (555) 0100")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, result.Success)
	require.Equal(t, checkout.RedirectMessage, result.Redirect.Type)
	require.Equal(t, "Thanks!", result.Redirect.ThankYouMessage)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", result.OrderID).Error)
	require.Equal(t, "+15550100", stored.Phone)
	require.Equal(t, "Sam", stored.FirstName)
	require.Equal(t, "Standard", stored.ShippingMethod)
	require.Equal(t, 2, stored.Quantity)
	require.True(t, decimal.NewFromInt(45).Equal(stored.Total))
	require.Equal(t, models.Tags{"codform", "cod"}, stored.Tags)

	require.Equal(t, []string{events.TypeOrderCreated}, f.events.Types())
}

func TestCreateOrderPricesFromCatalogAndForm(t *testing.T) {
	f := setup(t)
	f.seedForm(t, models.Form{})

	rec, result := f.order(t, "0622222222", func(r *checkout.Request) {
		r.ShippingMethod = "99"
		r.Shipping = &formconfig.ShippingRate{ID: "99", Name: "Overnight", Price: decimal.NewFromInt(-30)}
		r.Totals = checkout.Totals{Subtotal: decimal.Zero, Shipping: decimal.NewFromInt(-30), Total: decimal.NewFromInt(-30)}
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", result.Error)

	rec, _ = f.order(t, "0622222222", func(r *checkout.Request) { r.VariantID = 999 })
	require.Equal(t, http.StatusBadRequest, rec.Code, "variants outside the product are rejected")

	var n int64
	f.db.Model(&models.Order{}).Count(&n)
	require.Zero(t, n)

	rec, result = f.order(t, "0622222222", func(r *checkout.Request) {
		r.Shipping = &formconfig.ShippingRate{ID: "1", Name: "Standard", Price: decimal.Zero}
		r.Totals = checkout.Totals{Subtotal: decimal.NewFromInt(1), Shipping: decimal.Zero, Total: decimal.NewFromInt(1), Currency: "USD"}
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", result.OrderID).Error)
	require.Equal(t, "Standard", stored.ShippingMethod)
	require.True(t, decimal.NewFromInt(40).Equal(stored.Subtotal), "2 x 20.00 from the catalog")
	require.True(t, decimal.NewFromInt(5).Equal(stored.ShippingPrice), "the configured rate wins")
	require.True(t, decimal.NewFromInt(45).Equal(stored.Total))
}

func TestCreateOrderSyncsInlineWithoutConsumer(t *testing.T) {
	f := setup(t)
	f.events.NoConsumer = true
	f.seedForm(t, models.Form{ThankYouMessage: "Thanks!", CreatePlatformOrder: true})
	require.NoError(t, f.db.Create(&models.Shop{Domain: shop, AccessToken: "shpat", Active: true}).Error)
	require.NoError(t, f.db.Create(&models.BlockedCustomer{ShopDomain: shop, Kind: models.BlockKindPhone, Value: "+15550199"}).Error)

	rec, result := f.order(t, "0633333333")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, checkout.RedirectMessage, result.Redirect.Type)
	require.Equal(t, 1, f.admin.calls)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", result.OrderID).Error)
	require.Equal(t, models.OrderStatusSynced, stored.Status)

	rec, _ = f.order(t, "+1 555 0199")
	require.Equal(t, http.StatusForbidden, rec.Code)

	var entry models.BlockedCustomer
	require.NoError(t, f.db.First(&entry, "value = ?", "+15550199").Error)
	require.Equal(t, 1, entry.Hits, "block hits are counted without a worker")
	require.Empty(t, f.events.Types())
}

func TestCreateOrderBlockedPhone(t *testing.T) {
	f := setup(t)
	f.seedForm(t, models.Form{BlockedMessage: "Call us to order."})
	require.NoError(t, f.db.Create(&models.BlockedCustomer{ShopDomain: shop, Kind: models.BlockKindPhone, Value: "+15550100"}).Error)

	rec, result := f.order(t, "+1 555 0100")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, result.Success)
	require.True(t, result.Blocked())
	require.Equal(t, "Call us to order.", result.Message)
	require.Equal(t, []string{events.TypeOrderBlocked}, f.events.Types())

	var n int64
	f.db.Model(&models.Order{}).Count(&n)
	require.Zero(t, n, "blocked orders are not stored")
}

func TestCreateOrderDailyLimit(t *testing.T) {
	f := setup(t)
	f.seedForm(t, models.Form{MaxOrdersPerPhonePerDay: 1})

	rec, _ := f.order(t, "0600000000")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, result := f.order(t, "0600000000")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, checkout.ErrorOrderBlocked, result.Error)
	require.Equal(t, fraud.DefaultBlockedMessage, result.Message)
}

func TestCreateOrderRedirects(t *testing.T) {
	t.Run("custom", func(t *testing.T) {
		f := setup(t)
		f.seedForm(t, models.Form{RedirectType: models.RedirectCustom, RedirectURL: "https://demo.example/thanks"})
		_, result := f.order(t, "0611111111")
		require.Equal(t, checkout.RedirectCustom, result.Redirect.Type)
		require.Equal(t, "https://demo.example/thanks", result.Redirect.RedirectURL)
	})

	t.Run("whatsapp", func(t *testing.T) {
		f := setup(t)
		f.seedForm(t, models.Form{
			RedirectType:     models.RedirectWhatsApp,
			WhatsAppNumber:   "+212 600-000000",
			WhatsAppTemplate: `Hi, I'm {first_name}.\nI ordered {product_name} for {order_total}`,
		})
		_, result := f.order(t, "0611111111")
		require.Equal(t, checkout.RedirectWhatsApp, result.Redirect.Type)

		u, err := url.Parse(result.Redirect.RedirectURL)
		require.NoError(t, err)
		require.Equal(t, "wa.me", u.Host)
		require.Equal(t, "/212600000000", u.Path)
		require.Equal(t, "Hi, I'm Sam.\nI ordered Linen Shirt for $45.00", u.Query().Get("text"))
	})

	t.Run("default syncs inline", func(t *testing.T) {
		f := setup(t)
		f.seedForm(t, models.Form{RedirectType: models.RedirectDefault, CreatePlatformOrder: true})
		require.NoError(t, f.db.Create(&models.Shop{Domain: shop, AccessToken: "shpat", Active: true}).Error)

		_, result := f.order(t, "0611111111")
		require.Equal(t, checkout.RedirectDefault, result.Redirect.Type)
		require.Equal(t, "https://demo.example/status/5001", result.Redirect.OrderStatusURL)
		require.Equal(t, 1, f.admin.calls)
		require.Empty(t, f.events.Types(), "an inline sync needs no event")
	})
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := setup(t)
	f.seedForm(t, models.Form{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-order", strings.NewReader("shop=demo&variantId=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/create-order", strings.NewReader("shop=unknown&variantId=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFormsPutValidatesAndUpserts(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPut, "/api/v1/forms/demo", `{"config": "not an object"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/forms/demo", map[string]any{
		"config":        json.RawMessage(formDoc),
		"redirect_type": "custom",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "custom redirects need a URL")

	rec = f.do(t, http.MethodPut, "/api/v1/forms/demo", map[string]any{
		"config":                       json.RawMessage(formDoc),
		"max_orders_per_phone_per_day": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var first struct {
		Data models.Form `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.NotEmpty(t, first.Data.ID)

	rec = f.do(t, http.MethodPut, "/api/v1/forms/demo", map[string]any{
		"config":                       json.RawMessage(formDoc),
		"max_orders_per_phone_per_day": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, "publishing the same form again updates it")
	var again struct {
		Data models.Form `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	require.Equal(t, first.Data.ID, again.Data.ID)
	require.Equal(t, 3, again.Data.MaxOrdersPerPhonePerDay)

	rec = f.do(t, http.MethodPut, "/api/v1/forms/demo", map[string]any{
		"config":                json.RawMessage(formDoc),
		"shipping":              json.RawMessage(`[{"id": 2, "name": "Express", "price": "9.5"}]`),
		"create_platform_order": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var stored []models.Form
	require.NoError(t, f.db.Find(&stored).Error)
	require.Len(t, stored, 1)
	require.Equal(t, shop, stored[0].ShopDomain)
	require.Equal(t, models.RedirectMessage, stored[0].RedirectType)
	require.Zero(t, stored[0].MaxOrdersPerPhonePerDay)
	require.False(t, stored[0].CreatePlatformOrder)
	require.Contains(t, stored[0].Shipping, "Express")

	rec = f.do(t, http.MethodGet, "/api/v1/forms/demo.myshopify.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPutShop(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPut, "/api/v1/shops/demo", map[string]any{"name": "Demo", "access_token": "shpat", "currency": "mad"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "shpat", "tokens are never echoed")

	rec = f.do(t, http.MethodPut, "/api/v1/shops/demo", map[string]any{"name": "Demo Store"})
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.Shop
	require.NoError(t, f.db.First(&stored, "domain = ?", shop).Error)
	require.Equal(t, "Demo Store", stored.Name)
	require.Equal(t, "MAD", stored.Currency)
	require.True(t, stored.HasAdminAccess())
}

func TestBlocklistCRUD(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/v1/blocklist", map[string]any{"shop": "demo", "kind": "email", "value": " Fraud@Example.com "})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/blocklist", map[string]any{"shop": "demo", "kind": "fax", "value": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/blocklist", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/blocklist?shop=demo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []models.BlockedCustomer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	require.Equal(t, "fraud@example.com", list.Data[0].Value)

	rec = f.do(t, http.MethodDelete, "/api/v1/blocklist/"+list.Data[0].ID+"?shop=demo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/blocklist/"+list.Data[0].ID+"?shop=demo", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifiesAndApplies(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Create(&models.Shop{Domain: shop, AccessToken: "shpat", Active: true}).Error)
	require.NoError(t, f.db.Create(&models.Order{ShopDomain: shop, PlatformOrderID: 5001}).Error)

	send := func(topic, body, signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shopify/webhook", strings.NewReader(body))
		req.Header.Set("X-Shopify-Topic", topic)
		req.Header.Set("X-Shopify-Shop-Domain", shop)
		req.Header.Set("X-Shopify-Hmac-Sha256", signature)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec.Code
	}

	body := `{"id": 5001, "name": "#1001"}`
	require.Equal(t, http.StatusUnauthorized, send(TopicOrdersCancelled, body, sign("wrong", body)))
	require.Equal(t, http.StatusOK, send(TopicOrdersCancelled, body, sign("s3cret", body)))

	var order models.Order
	require.NoError(t, f.db.First(&order, "platform_order_id = ?", 5001).Error)
	require.Equal(t, "cancelled", order.PlatformStatus)

	require.Equal(t, http.StatusOK, send(TopicAppUninstalled, `{}`, sign("s3cret", `{}`)))
	var stored models.Shop
	require.NoError(t, f.db.First(&stored, "domain = ?", shop).Error)
	require.False(t, stored.HasAdminAccess())
}
