package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"codform/internal/events"
	"codform/internal/logger"
	"codform/internal/models"
	"codform/internal/services/fraud"
	"codform/internal/services/orders"
	"codform/internal/services/shopify"
	"codform/internal/storefront/checkout"
	"codform/internal/storefront/formconfig"
	"codform/internal/storefront/render"
	"codform/internal/worker/processors"
)

// maxOrderMemory bounds the in-memory part of a create-order submission.
const maxOrderMemory = 1 << 20

// orderTags mark every order captured by the form.
var orderTags = models.Tags{"codform", "cod"}

// PublicHandler serves the two endpoints the storefront runtime calls.
type PublicHandler struct {
	db        *gorm.DB
	logger    *logger.Logger
	fraud     *fraud.Checker
	publisher events.Publisher
	syncer    *orders.Syncer
	pricer    *orders.Pricer
	// inline applies events in the request when no worker consumes them.
	inline *processors.EventProcessor
}

func NewPublicHandler(db *gorm.DB, logger *logger.Logger, checker *fraud.Checker, publisher events.Publisher, syncer *orders.Syncer, pricer *orders.Pricer) *PublicHandler {
	return &PublicHandler{
		db:        db,
		logger:    logger,
		fraud:     checker,
		publisher: publisher,
		syncer:    syncer,
		pricer:    pricer,
		inline:    processors.NewEventProcessor(syncer, checker, logger),
	}
}

// FormConfig returns the published form and shipping rates of a shop
func (h *PublicHandler) FormConfig(c *gin.Context) {
	shop := shopify.NormalizeShopDomain(c.Query("shop"))
	if shop == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop is required"})
		return
	}

	form, err := h.loadForm(c.Request.Context(), shop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Form not found"})
			return
		}
		h.logger.Error("Failed to load form for %s: %v", shop, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load form"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"form":     rawJSON(form.Config, "{}"),
		"shipping": rawJSON(form.Shipping, "[]"),
	})
}

// CreateOrder accepts a multipart order submission from the storefront.
func (h *PublicHandler) CreateOrder(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxOrderMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		c.JSON(http.StatusBadRequest, checkout.Result{Error: "invalid_request", Message: err.Error()})
		return
	}

	req, err := checkout.ParseForm(c.Request.FormValue, submittedNames(c.Request))
	if err != nil {
		c.JSON(http.StatusBadRequest, checkout.Result{Error: "invalid_request", Message: err.Error()})
		return
	}
	if req.VariantID == 0 {
		c.JSON(http.StatusBadRequest, checkout.Result{Error: "invalid_request", Message: "missing " + checkout.FieldVariantID})
		return
	}

	ctx := c.Request.Context()
	shop := shopify.NormalizeShopDomain(req.Shop)
	form, err := h.loadForm(ctx, shop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, checkout.Result{Error: "form_not_found", Message: "Form not found"})
			return
		}
		h.logger.Error("Failed to load form for %s: %v", shop, err)
		c.JSON(http.StatusInternalServerError, checkout.Result{Error: "internal_error", Message: "Failed to create order"})
		return
	}

	err = h.fraud.Check(ctx, form, fraud.Input{
		Shop:  shop,
		Phone: req.Field("phone_number"),
		Email: req.Field("email"),
		IP:    c.ClientIP(),
	})
	if block, ok := fraud.AsBlock(err); ok {
		h.logger.Warn("Blocked order for %s (%s %s)", shop, block.Reason, block.Kind)
		h.dispatch(ctx, events.TypeOrderBlocked, shop, "", events.BlockedData{
			Reason: block.Reason,
			Kind:   string(block.Kind),
			Value:  block.Value,
		})
		c.JSON(http.StatusForbidden, checkout.Result{Error: checkout.ErrorOrderBlocked, Message: block.Message})
		return
	}
	if err != nil {
		h.logger.Error("Fraud check failed for %s: %v", shop, err)
		c.JSON(http.StatusInternalServerError, checkout.Result{Error: "internal_error", Message: "Failed to create order"})
		return
	}

	lines, status, err := h.price(ctx, form, req)
	if err != nil {
		if status == http.StatusBadRequest {
			c.JSON(status, checkout.Result{Error: "invalid_request", Message: err.Error()})
			return
		}
		h.logger.Error("Failed to price order for %s: %v", shop, err)
		c.JSON(status, checkout.Result{Error: "pricing_unavailable", Message: "Failed to create order"})
		return
	}

	order := newOrder(shop, req, lines, c.ClientIP())
	if err := h.db.WithContext(ctx).Create(order).Error; err != nil {
		h.logger.Error("Failed to save order for %s: %v", shop, err)
		c.JSON(http.StatusInternalServerError, checkout.Result{Error: "internal_error", Message: "Failed to create order"})
		return
	}
	h.logger.Info("Order %s captured for %s", order.ID, shop)

	redirect := h.redirect(ctx, form, order, req)
	if redirect.Type != checkout.RedirectDefault && form.CreatePlatformOrder {
		h.dispatch(ctx, events.TypeOrderCreated, shop, order.ID, nil)
	}

	c.JSON(http.StatusOK, checkout.Result{Success: true, OrderID: order.ID, Redirect: redirect})
}

// redirect decides the post-order action. The default redirect needs the
// platform order status page, so that order is synced before replying.
func (h *PublicHandler) redirect(ctx context.Context, form *models.Form, order *models.Order, req *checkout.Request) *checkout.Redirect {
	switch form.RedirectType {
	case models.RedirectCustom:
		if form.RedirectURL != "" {
			return &checkout.Redirect{Type: checkout.RedirectCustom, RedirectURL: form.RedirectURL}
		}
	case models.RedirectWhatsApp:
		if link := whatsAppLink(form, order, req); link != "" {
			return &checkout.Redirect{Type: checkout.RedirectWhatsApp, RedirectURL: link}
		}
	case models.RedirectDefault:
		r := &checkout.Redirect{Type: checkout.RedirectDefault}
		if synced := h.syncInline(ctx, order); synced != nil {
			r.OrderStatusURL = synced.OrderStatusURL
		}
		return r
	}
	return &checkout.Redirect{Type: checkout.RedirectMessage, ThankYouMessage: form.ThankYouMessage}
}

// pricing is the server-side view of an order's money.
type pricing struct {
	subtotal decimal.Decimal
	shipping *formconfig.ShippingRate
}

// price recomputes the subtotal from the shop catalog and resolves the
// shipping rate from the form. The returned status applies to err.
func (h *PublicHandler) price(ctx context.Context, form *models.Form, req *checkout.Request) (pricing, int, error) {
	var p pricing

	var rates []formconfig.ShippingRate
	if strings.TrimSpace(form.Shipping) != "" {
		if err := json.Unmarshal([]byte(form.Shipping), &rates); err != nil {
			return p, http.StatusInternalServerError, fmt.Errorf("decode shipping rates: %w", err)
		}
	}
	id := req.ShippingMethod
	if req.Shipping != nil && req.Shipping.ID != "" {
		id = req.Shipping.ID.String()
	}
	rate, err := orders.ResolveShipping(rates, id)
	if err != nil {
		return p, http.StatusBadRequest, err
	}
	p.shipping = rate

	if h.pricer == nil {
		if req.Totals.Subtotal.IsNegative() {
			return p, http.StatusBadRequest, errors.New("subtotal is negative")
		}
		p.subtotal = req.Totals.Subtotal
		return p, 0, nil
	}
	handle := ""
	if req.Product != nil {
		handle = req.Product.Handle
	}
	p.subtotal, err = h.pricer.Subtotal(ctx, form.ShopDomain, handle, req.VariantID, req.Quantity)
	if errors.Is(err, orders.ErrUnknownVariant) {
		return p, http.StatusBadRequest, err
	}
	if err != nil {
		return p, http.StatusBadGateway, err
	}
	return p, 0, nil
}

func (h *PublicHandler) syncInline(ctx context.Context, order *models.Order) *models.Order {
	if h.syncer == nil {
		return nil
	}
	synced, err := h.syncer.Sync(ctx, order.ID)
	if err != nil {
		if errors.Is(err, orders.ErrNoAdminAccess) {
			h.logger.Debug("Order %s kept local: %v", order.ID, err)
		} else {
			h.logger.Error("Failed to sync order %s: %v", order.ID, err)
		}
		return nil
	}
	return synced
}

// dispatch hands an event to the worker. Without a consumer, or when the
// publish fails, the event is applied here instead.
func (h *PublicHandler) dispatch(ctx context.Context, typ, shop, orderID string, data interface{}) {
	ev, err := events.NewEvent(typ, shop, orderID, data)
	if err != nil {
		h.logger.Error("Failed to build %s for %s: %v", typ, shop, err)
		return
	}
	if !h.publisher.Inline() {
		err := h.publisher.Publish(ctx, ev)
		if err == nil {
			return
		}
		h.logger.Error("Failed to publish %s for %s, applying inline: %v", typ, shop, err)
	}
	if err := h.inline.Process(ctx, ev); err != nil {
		h.logger.Error("Failed to apply %s for %s: %v", typ, shop, err)
	}
}

func (h *PublicHandler) loadForm(ctx context.Context, shop string) (*models.Form, error) {
	var form models.Form
	if err := h.db.WithContext(ctx).Where("shop_domain = ?", shop).First(&form).Error; err != nil {
		return nil, err
	}
	return &form, nil
}

func newOrder(shop string, req *checkout.Request, p pricing, ip string) *models.Order {
	order := &models.Order{
		ShopDomain:    shop,
		Status:        models.OrderStatusPending,
		FirstName:     req.Field("first_name"),
		LastName:      req.Field("last_name"),
		Phone:         fraud.NormalizePhone(req.Field("phone_number")),
		Email:         fraud.NormalizeEmail(req.Field("email")),
		Address:       req.Field("address"),
		Address2:      req.Field("address_2"),
		City:          req.Field("city"),
		Province:      req.Field("province"),
		Zip:           req.Field("zip_code"),
		IP:            ip,
		Subscribe:     req.Subscribe,
		VariantID:     req.VariantID,
		Quantity:      req.Quantity,
		Subtotal:      p.subtotal,
		ShippingPrice: decimal.Zero,
		Total:         p.subtotal,
		Currency:      req.Totals.Currency,
		DiscountCode:  req.Field("discount_code"),
		Tags:          orderTags,
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	if p.shipping != nil {
		order.ShippingMethod = p.shipping.Name
		order.ShippingPrice = p.shipping.Price
		order.Total = order.Subtotal.Add(order.ShippingPrice)
	}
	if req.Product != nil {
		order.ProductID = req.Product.ID
		order.ProductTitle = req.Product.Title
	}
	return order
}

// whatsAppLink builds a wa.me chat link with the merchant template filled in.
func whatsAppLink(form *models.Form, order *models.Order, req *checkout.Request) string {
	number := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, form.WhatsAppNumber)
	if number == "" {
		return ""
	}

	link := "https://wa.me/" + number
	template := strings.TrimSpace(form.WhatsAppTemplate)
	if template == "" {
		return link
	}
	text := formconfig.Expand(formconfig.UnescapeNewlines(template), formconfig.ShortcodeValues{
		ProductName:   order.ProductTitle,
		FirstName:     order.FirstName,
		OrderTotal:    render.FormatMoney(order.Total, order.Currency),
		OrderSubtotal: render.FormatMoney(order.Subtotal, order.Currency),
	})
	return link + "?text=" + url.QueryEscape(text)
}

// submittedNames lists every form field of the request in a stable order.
func submittedNames(r *http.Request) []string {
	seen := make(map[string]bool)
	if r.MultipartForm != nil {
		for name := range r.MultipartForm.Value {
			seen[name] = true
		}
	}
	for name := range r.PostForm {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func rawJSON(s, fallback string) json.RawMessage {
	if strings.TrimSpace(s) == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(s)
}
