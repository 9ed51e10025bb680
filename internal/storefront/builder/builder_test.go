package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"codform/internal/services/shopify"
	"codform/internal/storefront/cart"
	"codform/internal/storefront/checkout"
	"codform/internal/storefront/detector"
	"codform/internal/storefront/dom"
	"codform/internal/storefront/formconfig"
	"codform/internal/storefront/render"
)

const productPage = `<html><head></head><body>
<h1>Linen Shirt</h1>
<form action="/cart/add" method="post">
  <input type="hidden" name="id" value="101">
  <button type="submit" name="add">Add to cart</button>
</form>
<input type="number" name="quantity" value="1">
</body></html>`

const formJSON = `{
  "form": {
    "formType": %q,
    "buyButton": {"text": "Buy Now"},
    "successMessage": "Thanks {first_name}!\\nTotal {order_total}",
    "freeShippingLabel": "Free",
    "currency": "USD",
    "fields": [
      {"id": 1, "type": "input", "label": "first_name", "displayLabel": "First name", "required": true},
      {"id": 2, "type": "input", "label": "phone_number", "displayLabel": "Phone", "required": true, "minLength": 6},
      {"id": 3, "type": "input", "label": "email", "displayLabel": "Email"},
      {"id": 13, "type": "section"},
      {"id": 14, "type": "section"},
      {"id": 15, "type": "section"},
      {"id": 40, "type": "button", "buttonSettings": {"text": "Order - {order_total}"}}
    ]
  },
  "shipping": [
    {"id": 1, "name": "Standard", "price": 0},
    {"id": 2, "name": "Express", "price": 7.5}
  ]
}`

type fakeBackend struct {
	mu       sync.Mutex
	config   *formconfig.Response
	cfgErr   error
	result   *checkout.Result
	orderErr error
	block    bool
	orders   []*checkout.Request
}

func (f *fakeBackend) FormConfig(_ context.Context, shop string) (*formconfig.Response, error) {
	return f.config, f.cfgErr
}

func (f *fakeBackend) CreateOrder(ctx context.Context, order *checkout.Request) (*checkout.Result, error) {
	f.mu.Lock()
	f.orders = append(f.orders, order)
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.orderErr
}

type fakeHost struct {
	mu       sync.Mutex
	navigate []string
	tabs     []string
}

func (h *fakeHost) Navigate(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.navigate = append(h.navigate, url)
}

func (h *fakeHost) OpenTab(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs = append(h.tabs, url)
}

type staticSource struct{}

func (staticSource) Product(context.Context, string) (*shopify.StorefrontProduct, error) {
	return &shopify.StorefrontProduct{
		ID:    1,
		Title: "Linen Shirt",
		Price: 2500,
		Variants: []shopify.StorefrontVariant{
			{ID: 101, Price: 2500, Available: true},
			{ID: 102, Price: 3000, Available: true},
		},
	}, nil
}

type fixture struct {
	page    *dom.Page
	det     *detector.Detector
	backend *fakeBackend
	host    *fakeHost
	b       *Builder
}

func setup(t *testing.T, formType string, opts ...func(*Options)) *fixture {
	t.Helper()

	page, err := dom.LoadString("https://shop.example/products/linen-shirt", productPage)
	require.NoError(t, err)
	det := detector.New(page, staticSource{}, time.Millisecond, nil)
	det.Init(context.Background())

	cfg, err := formconfig.Parse([]byte(fmt.Sprintf(formJSON, formType)))
	require.NoError(t, err)

	f := &fixture{
		page:    page,
		det:     det,
		backend: &fakeBackend{config: cfg},
		host:    &fakeHost{},
	}
	o := Options{
		Shop:              "demo.myshopify.com",
		Page:              page,
		Detector:          det,
		Backend:           f.backend,
		Host:              f.host,
		BlockedResetDelay: 50 * time.Millisecond,
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.b = New(o)
	t.Cleanup(func() {
		f.b.Close()
		det.Close()
	})
	require.NoError(t, f.b.Init(context.Background()))
	return f
}

func (f *fixture) fill(t *testing.T) {
	t.Helper()
	require.True(t, f.b.HandleInput("first_name", "Sam"))
	require.True(t, f.b.HandleInput("phone_number", "0612345678"))
}

func TestPopupMountsOneTriggerAndOpens(t *testing.T) {
	t.Parallel()

	f := setup(t, "POPUP")
	require.Equal(t, 1, f.page.Count(render.SelTrigger))
	require.Equal(t, "Buy Now", f.page.Text(".formino-trigger-text"))
	require.Equal(t, "none", f.page.Style(render.SelOverlay, "display"))

	_, err := f.b.HandleEvent(context.Background(), UIEvent{Type: "click", Target: TargetTrigger})
	require.NoError(t, err)
	require.Equal(t, "flex", f.page.Style(render.SelOverlay, "display"))
	require.True(t, f.b.PopupOpen())

	require.NoError(t, f.b.Mount())
	require.Equal(t, 1, f.page.Count(render.SelTrigger))
	require.Equal(t, 1, f.page.Count(render.SelOverlay))
	require.Equal(t, 1, f.page.Count(render.SelStyles))
}

func TestEmbeddedMountIsIdempotent(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	require.NoError(t, f.b.Mount())

	require.Equal(t, 1, f.page.Count(render.SelForm))
	require.Equal(t, 1, f.page.Count(`form[action*="/cart/add"] `+render.SelContainer))
	require.Equal(t, 0, f.page.Count(render.SelTrigger))
	require.Equal(t, StateIdle, f.b.State())
}

func TestEmbeddedWithoutAddToCartAppendsToBody(t *testing.T) {
	t.Parallel()

	page, err := dom.LoadString("https://shop.example/products/x", `<html><body><p>hi</p></body></html>`)
	require.NoError(t, err)
	b := New(Options{Shop: "demo", Page: page, Backend: &fakeBackend{cfgErr: errors.New("down")}})
	t.Cleanup(b.Close)
	require.NoError(t, b.Init(context.Background()))

	require.Equal(t, formconfig.FormTypeEmbedded, b.Config().FormType)
	require.Equal(t, 1, page.Count("body > "+render.SelContainer))
}

func TestTotalsFollowVariantAndShipping(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	require.Equal(t, "$25.00", f.page.Text(render.SelSubtotal))
	require.Equal(t, "Free", f.page.Text(render.SelShippingCost))
	require.Equal(t, "$25.00", f.page.Text(render.SelTotalAmount))

	_, err := f.b.HandleEvent(context.Background(), UIEvent{Type: "change", Target: "quantity", Value: "2"})
	require.NoError(t, err)
	f.det.Wait()
	require.Equal(t, 2, f.det.Quantity())
	require.Equal(t, "$25.00", f.page.Text(render.SelSubtotal), "subtotal is the unit price")

	require.True(t, f.b.SelectShipping("2"))
	totals := f.b.CalculateTotals()
	require.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.Shipping)))
	require.True(t, totals.Total.Equal(decimal.RequireFromString("32.5")))
	require.Equal(t, "$7.50", f.page.Text(render.SelShippingCost))
	require.Equal(t, "$32.50", f.page.Text(render.SelTotalAmount))
	require.Equal(t, "$32.50", f.page.Text(render.SelOrderTotal))

	require.False(t, f.b.SelectShipping("missing"))

	f.det.HandleChange("id", "102")
	f.det.Wait()
	require.Equal(t, "$30.00", f.page.Text(render.SelSubtotal))
	require.Equal(t, "$37.50", f.page.Text(render.SelTotalAmount))
}

func TestVariantChangeMovesCartLine(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var updates []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cart/update.js" {
			var body struct {
				Updates map[string]any `json:"updates"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			updates = append(updates, body.Updates)
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	f := setup(t, "EMBEDDED", func(o *Options) {
		o.Cart = cart.NewManager(shopify.NewStorefrontClient(srv.URL, nil), nil)
	})

	f.det.HandleChange("quantity", "2")
	f.det.Wait()
	f.det.HandleChange("id", "102")
	f.det.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []map[string]any{
		{"101": float64(2)},
		{"101": float64(0), "102": float64(2)},
	}, updates)
}

func TestValidationBlocksSubmit(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	out, err := f.b.Submit(context.Background())
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, OutcomeInvalid, out)
	require.Empty(t, f.backend.orders)
	require.Equal(t, "This field is required", f.page.Text(`[data-error-for="first_name"]`))
	require.Equal(t, 1, f.page.Count(`#formino-message-popup.formino-message-validation`))

	f.b.HandleInput("first_name", "S")
	require.Equal(t, "", f.page.Text(`[data-error-for="first_name"]`), "typing clears the error")
	require.NotContains(t, f.b.Errors(), "first_name")

	f.b.HandleInput("email", "not-an-email")
	require.Equal(t, "Please enter a valid email address", f.b.HandleBlur("email"))
	require.Equal(t, "block", f.page.Style(`[data-error-for="email"]`, "display"))
}

func TestValidateField(t *testing.T) {
	t.Parallel()

	f := &formconfig.InputField{Label: "phone_number", Required: true, MinLength: 3, MaxLength: 5}
	require.NotEmpty(t, ValidateField(f, "  "))
	require.NotEmpty(t, ValidateField(f, "12"))
	require.NotEmpty(t, ValidateField(f, "123456"))
	require.Empty(t, ValidateField(f, "1234"))

	custom := &formconfig.InputField{Label: "city", Required: true, ErrorText: "City please"}
	require.Equal(t, "City please", ValidateField(custom, ""))

	optional := &formconfig.InputField{Label: "email"}
	require.Empty(t, ValidateField(optional, ""))
	require.Empty(t, ValidateField(optional, "a@b.co"))
}

func TestSubmitMessageOutcome(t *testing.T) {
	t.Parallel()

	f := setup(t, "POPUP")
	f.backend.result = &checkout.Result{Success: true, Redirect: &checkout.Redirect{Type: checkout.RedirectMessage}}
	f.b.OpenPopup()
	f.fill(t)
	require.True(t, f.page.SetValue(render.SelForm+` input[name="discount_code"]`, " SPRING10 "))

	out, err := f.b.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeMessage, out)

	require.Len(t, f.backend.orders, 1)
	order := f.backend.orders[0]
	require.Equal(t, "Sam", order.Fields["first_name"])
	require.Equal(t, int64(101), order.VariantID)
	require.Equal(t, "1", order.ShippingMethod)
	require.True(t, order.Totals.Total.Equal(decimal.NewFromInt(25)))
	require.Equal(t, "SPRING10", order.Fields["discount_code"])

	require.Equal(t, "Thanks Sam!\nTotal $25.00", f.page.Text(".formino-message-text"))
	require.Equal(t, "", f.b.Value("first_name"), "form was reset")
	require.Equal(t, "", f.page.Value(render.SelForm+` input[name="discount_code"]`), "discount code was cleared")
	require.False(t, f.b.PopupOpen())
	_, disabled := f.page.Attr(render.SelSubmitButton, "disabled")
	require.False(t, disabled)
}

func TestSubmitWhatsAppOpensTabAndResets(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	f.backend.result = &checkout.Result{Success: true, Redirect: &checkout.Redirect{Type: checkout.RedirectWhatsApp, RedirectURL: "https://wa.me/123"}}
	f.fill(t)

	out, err := f.b.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeWhatsApp, out)
	require.Equal(t, []string{"https://wa.me/123"}, f.host.tabs)
	require.Empty(t, f.host.navigate)
	require.Equal(t, "", f.b.Value("first_name"))
	require.Equal(t, 1, f.page.Count(`#formino-message-popup.formino-message-whatsapp`))
}

func TestSubmitRedirects(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	f.backend.result = &checkout.Result{Success: true, Redirect: &checkout.Redirect{Type: checkout.RedirectCustom, RedirectURL: "https://shop.example/pages/thanks"}}
	f.fill(t)
	out, err := f.b.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeRedirect, out)

	f.backend.result = &checkout.Result{Success: true, Redirect: &checkout.Redirect{Type: checkout.RedirectDefault, OrderStatusURL: "https://shop.example/orders/1"}}
	f.fill(t)
	out, err = f.b.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeRedirect, out)
	require.Equal(t, []string{"https://shop.example/pages/thanks", "https://shop.example/orders/1"}, f.host.navigate)

	// default without a status url falls back to the message path.
	f.backend.result = &checkout.Result{Success: true, Redirect: &checkout.Redirect{Type: checkout.RedirectDefault}}
	f.fill(t)
	out, err = f.b.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeMessage, out)
}

func TestSubmitBlockedResetsAfterDelay(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	f.backend.result = &checkout.Result{Success: false, Error: checkout.ErrorOrderBlocked, Message: "Too many orders"}
	f.fill(t)

	out, err := f.b.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeBlocked, out)
	require.Equal(t, "Too many orders", f.page.Text(".formino-message-text"))
	require.Equal(t, 1, f.page.Count(`#formino-message-popup.formino-message-blocked`))

	require.Equal(t, StateBlockedDisplayed, f.b.State())
	require.Equal(t, "Sam", f.b.Value("first_name"), "no immediate reset")
	_, err = f.b.Submit(context.Background())
	require.ErrorIs(t, err, ErrNotReady)

	require.Eventually(t, func() bool { return f.b.State() == StateIdle }, time.Second, 5*time.Millisecond)
	require.Equal(t, "", f.b.Value("first_name"))
	require.Empty(t, f.host.navigate)
	require.Empty(t, f.host.tabs)
}

func TestSubmitFailureKeepsInput(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	f.backend.orderErr = errors.New("connection refused")
	f.fill(t)

	out, err := f.b.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, out)
	require.Equal(t, StateErrorDisplayed, f.b.State())
	require.Equal(t, 1, f.page.Count(`#formino-message-popup.formino-message-error`))
	require.Equal(t, "Sam", f.b.Value("first_name"))
	require.False(t, f.page.Count(render.SelSubmitButton+"."+render.ClassLoading) > 0)

	f.b.DismissMessage()
	require.Equal(t, 0, f.page.Count(render.SelMessagePopup))
	require.Equal(t, StateIdle, f.b.State())

	f.backend.orderErr = nil
	f.backend.result = &checkout.Result{Success: false, Message: "Out of stock"}
	out, err = f.b.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, out)
	require.Equal(t, "Out of stock", f.page.Text(".formino-message-text"))
}

func TestCloseCancelsInFlightSubmit(t *testing.T) {
	t.Parallel()

	f := setup(t, "EMBEDDED")
	f.backend.block = true
	f.fill(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.b.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.b.State() == StateSubmitting }, time.Second, time.Millisecond)

	f.b.Close()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("submit did not return after Close")
	}
	_, err := f.b.HandleEvent(context.Background(), UIEvent{Type: "click", Target: TargetTrigger})
	require.ErrorIs(t, err, ErrClosed)
}
