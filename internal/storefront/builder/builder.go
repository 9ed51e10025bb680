// Package builder orchestrates the storefront order form: it loads the
// merchant configuration, mounts the form into the product page, keeps the
// totals in sync with the detector and drives submission.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"codform/internal/logger"
	"codform/internal/storefront/cart"
	"codform/internal/storefront/checkout"
	"codform/internal/storefront/detector"
	"codform/internal/storefront/dom"
	"codform/internal/storefront/formconfig"
	"codform/internal/storefront/render"
)

// DefaultBlockedResetDelay is how long the blocked message stays up before
// the form resets.
const DefaultBlockedResetDelay = 5 * time.Second

var (
	ErrValidation = errors.New("builder: form has invalid fields")
	ErrNotReady   = errors.New("builder: form is not ready to submit")
	ErrClosed     = errors.New("builder: closed")
)

// theme add-to-cart buttons the embedded form is placed after.
var submitAnchors = []string{
	`form[action*="/cart/add"] [type="submit"]`,
	`button[name="add"]`,
}

// Backend is the order backend used by the builder.
type Backend interface {
	FormConfig(ctx context.Context, shop string) (*formconfig.Response, error)
	CreateOrder(ctx context.Context, order *checkout.Request) (*checkout.Result, error)
}

type Options struct {
	Shop     string
	Page     *dom.Page
	Detector *detector.Detector
	Backend  Backend
	Renderer *render.Renderer
	Host     Host
	Logger   *logger.Logger

	// Cart is optional; when set the shopper cart follows variant and
	// quantity changes.
	Cart *cart.Manager

	// Fallback replaces formconfig.Default when the config fetch fails.
	Fallback *formconfig.Response

	BlockedResetDelay time.Duration
}

type Builder struct {
	opts   Options
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	config     *formconfig.FormConfig
	shipping   []formconfig.ShippingRate
	selected   formconfig.FlexID
	errors     map[string]string
	resetTimer *time.Timer
	observing  bool

	// variant whose cart line the last sync wrote.
	cartVariant int64
}

func New(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New()
	}
	if opts.BlockedResetDelay <= 0 {
		opts.BlockedResetDelay = DefaultBlockedResetDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Builder{
		opts:   opts,
		logger: opts.Logger.With("shop", opts.Shop),
		ctx:    ctx,
		cancel: cancel,
		errors: make(map[string]string),
	}
}

// Init loads the configuration, mounts the form and subscribes to detector
// events.
func (b *Builder) Init(ctx context.Context) error {
	b.FetchFormConfig(ctx)
	if err := b.Mount(); err != nil {
		return err
	}
	b.mu.Lock()
	subscribe := !b.observing && b.opts.Detector != nil
	b.observing = true
	b.mu.Unlock()
	if subscribe {
		b.mu.Lock()
		b.cartVariant = b.opts.Detector.CurrentVariantID()
		b.mu.Unlock()
		b.opts.Detector.AddObserver(b.onDetectorEvent)
	}
	b.setState(StateIdle)
	return nil
}

// scope derives a call context that also ends when the builder closes.
func (b *Builder) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(b.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// FetchFormConfig loads the merchant configuration. Any failure falls back
// to the built-in default and is only logged.
func (b *Builder) FetchFormConfig(ctx context.Context) *formconfig.FormConfig {
	ctx, cancel := b.scope(ctx)
	defer cancel()

	var resp *formconfig.Response
	var err error
	if b.opts.Backend == nil {
		err = errors.New("no backend")
	} else {
		resp, err = b.opts.Backend.FormConfig(ctx, b.opts.Shop)
	}
	if err != nil || resp == nil {
		b.logger.Warn("builder: form config unavailable, using default: %v", err)
		resp = b.opts.Fallback
		if resp == nil {
			resp = formconfig.Default()
		}
	}

	cfg := resp.Form
	cfg.FormType = cfg.FormType.Normalize()

	b.mu.Lock()
	b.config = &cfg
	b.shipping = resp.Shipping
	b.selected = ""
	if len(resp.Shipping) > 0 {
		b.selected = resp.Shipping[0].ID
	}
	if b.state == StateUninitialized {
		b.state = StateConfigLoaded
	}
	b.mu.Unlock()
	return &cfg
}

// Config returns the loaded configuration, or nil before FetchFormConfig.
func (b *Builder) Config() *formconfig.FormConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config
}

func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Builder) setState(s State) {
	b.mu.Lock()
	if b.state != StateClosed {
		b.state = s
	}
	b.mu.Unlock()
}

// Mount renders the form into the page. Mounting again only restyles and
// refreshes the totals.
func (b *Builder) Mount() error {
	cfg := b.Config()
	if cfg == nil {
		return fmt.Errorf("builder: mount before config")
	}
	page := b.opts.Page
	r := b.opts.Renderer

	page.Remove(render.SelStyles)
	page.AppendTo("head", r.Styles(cfg))

	if page.Exists(render.SelContainer) && page.Exists(render.SelForm) {
		b.UpdateTotals()
		return nil
	}

	view := b.view()
	form, err := r.Form(view)
	if err != nil {
		return fmt.Errorf("builder: render form: %w", err)
	}

	if cfg.FormType == formconfig.FormTypePopup {
		if !page.Exists(render.SelTrigger) {
			trigger, err := r.PopupTrigger(cfg, view)
			if err != nil {
				return fmt.Errorf("builder: render trigger: %w", err)
			}
			b.insertNearAddToCart(trigger)
		}
		modal, err := r.Modal(form)
		if err != nil {
			return fmt.Errorf("builder: render modal: %w", err)
		}
		page.Remove(render.SelOverlay)
		page.AppendToBody(modal)
	} else {
		b.insertNearAddToCart(form)
	}

	b.setState(StateRendered)
	b.logger.Debug("builder: mounted %s form with %d fields", cfg.FormType, len(cfg.Visible()))
	return nil
}

func (b *Builder) insertNearAddToCart(html string) {
	for _, anchor := range submitAnchors {
		if b.opts.Page.InsertAfter(anchor, html) {
			return
		}
	}
	b.opts.Page.AppendToBody(html)
}

func (b *Builder) view() render.View {
	b.mu.Lock()
	cfg := b.config
	shipping := b.shipping
	selected := b.selected
	errs := make(map[string]string, len(b.errors))
	for k, v := range b.errors {
		errs[k] = v
	}
	b.mu.Unlock()

	name := ""
	if d := b.opts.Detector; d != nil {
		if p := d.Product(); p != nil {
			name = p.Title
		}
	}
	return render.View{
		Config:           cfg,
		Shipping:         shipping,
		SelectedShipping: selected,
		Totals:           b.CalculateTotals(),
		ProductName:      name,
		Errors:           errs,
	}
}

// OpenPopup shows the modal overlay.
func (b *Builder) OpenPopup() {
	b.opts.Page.SetStyle(render.SelOverlay, "display", "flex")
}

func (b *Builder) ClosePopup() {
	b.opts.Page.SetStyle(render.SelOverlay, "display", "none")
}

// PopupOpen reports whether the modal overlay is displayed.
func (b *Builder) PopupOpen() bool {
	return b.opts.Page.Style(render.SelOverlay, "display") == "flex"
}

// SelectShipping makes id the current rate. Unknown ids are ignored.
func (b *Builder) SelectShipping(id string) bool {
	b.mu.Lock()
	found := false
	for _, rate := range b.shipping {
		if rate.ID.String() == id {
			found = true
			break
		}
	}
	if found {
		b.selected = formconfig.FlexID(id)
	}
	b.mu.Unlock()
	if !found {
		return false
	}
	b.opts.Page.SetValue(fmt.Sprintf(`%s input[name="shipping_method"]`, render.SelForm), id)
	b.UpdateTotals()
	return true
}

// CurrentShipping returns the selected rate, or nil when none is configured.
func (b *Builder) CurrentShipping() *formconfig.ShippingRate {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.shipping {
		if b.shipping[i].ID == b.selected {
			rate := b.shipping[i]
			return &rate
		}
	}
	return nil
}

// CalculateTotals derives the totals from the detector's unit price and the
// selected shipping rate. Quantity is not applied; the backend prices the
// order line itself.
func (b *Builder) CalculateTotals() render.Totals {
	subtotal := decimal.Zero
	if d := b.opts.Detector; d != nil {
		subtotal = decimal.New(d.CurrentPrice(), -2)
	}
	shipping := decimal.Zero
	if rate := b.CurrentShipping(); rate != nil {
		shipping = rate.Price
	}

	cfg := b.Config()
	currency, free := "", ""
	if cfg != nil {
		currency = cfg.Currency
		free = cfg.FreeShippingLabel
		if s := cfg.Section(formconfig.SectionTotals); s != nil && s.Totals != nil && s.Totals.FreeLabel != "" {
			free = s.Totals.FreeLabel
		}
	}
	return render.Totals{
		Subtotal:  subtotal,
		Shipping:  shipping,
		Total:     subtotal.Add(shipping),
		Currency:  currency,
		FreeLabel: free,
	}
}

// UpdateTotals rewrites the live total elements in place.
func (b *Builder) UpdateTotals() {
	t := b.CalculateTotals()
	page := b.opts.Page
	page.SetText(render.SelSubtotal, t.SubtotalText())
	page.SetText(render.SelShippingCost, t.ShippingText())
	page.SetText(render.SelTotalAmount, t.TotalText())
	page.SetText(render.SelOrderTotal, t.TotalText())
	page.SetText(render.SelOrderSubtotal, t.SubtotalText())
}

func (b *Builder) onDetectorEvent(ev detector.Event) {
	b.UpdateTotals()
	if b.opts.Cart == nil || ev.Variant == nil {
		return
	}
	b.mu.Lock()
	previous := b.cartVariant
	if ev.Type == detector.EventProductLoaded {
		b.cartVariant = ev.Variant.ID
	}
	b.mu.Unlock()
	if ev.Type == detector.EventProductLoaded {
		return
	}

	ctx, cancel := b.scope(context.Background())
	defer cancel()
	var err error
	if previous != 0 && previous != ev.Variant.ID {
		_, err = b.opts.Cart.SwapVariant(ctx, previous, ev.Variant.ID, ev.Quantity)
	} else {
		_, err = b.opts.Cart.UpdateCart(ctx, ev.Variant.ID, ev.Quantity)
	}
	if err != nil {
		if errors.Is(err, cart.ErrBusy) {
			b.logger.Debug("builder: cart sync skipped: %v", err)
			return
		}
		b.logger.Warn("builder: cart sync failed: %v", err)
		return
	}
	b.mu.Lock()
	b.cartVariant = ev.Variant.ID
	b.mu.Unlock()
}

// ShowMessage replaces the message popup.
func (b *Builder) ShowMessage(kind, title, text string) {
	html, err := b.opts.Renderer.MessagePopup(kind, title, text)
	if err != nil {
		b.logger.Error("builder: render message: %v", err)
		return
	}
	b.opts.Page.Remove(render.SelMessagePopup)
	b.opts.Page.AppendToBody(html)
}

// DismissMessage closes the message popup.
func (b *Builder) DismissMessage() {
	b.opts.Page.Remove(render.SelMessagePopup)
	b.mu.Lock()
	if b.state == StateErrorDisplayed || b.state == StateSuccessDisplayed {
		b.state = StateIdle
	}
	b.mu.Unlock()
}

// Reset clears the shopper's input, errors and shipping choice and closes
// the popup. A message popup stays up.
func (b *Builder) Reset() {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	if b.resetTimer != nil {
		b.resetTimer.Stop()
		b.resetTimer = nil
	}
	cfg := b.config
	b.errors = make(map[string]string)
	b.selected = ""
	if len(b.shipping) > 0 {
		b.selected = b.shipping[0].ID
	}
	selected := b.selected
	b.state = StateIdle
	b.mu.Unlock()

	if cfg == nil {
		return
	}
	page := b.opts.Page
	for _, in := range cfg.Inputs() {
		page.SetValue(inputSelector(in.Label), "")
		b.showFieldError(in.Label, "")
	}
	subscribed := "false"
	for _, f := range cfg.Fields {
		if s, ok := f.(*formconfig.SubscribeField); ok && s.Settings.Checked {
			subscribed = "true"
		}
	}
	page.SetValue(render.SelForm+` input[name="subscribe"]`, subscribed)
	page.SetValue(render.SelForm+` input[name="discount_code"]`, "")
	if selected != "" {
		page.SetValue(render.SelForm+` input[name="shipping_method"]`, selected.String())
	}
	b.ClosePopup()
	b.UpdateTotals()
}

// Close cancels in-flight calls and pending timers. The builder is unusable
// afterwards.
func (b *Builder) Close() {
	b.cancel()
	b.mu.Lock()
	if b.resetTimer != nil {
		b.resetTimer.Stop()
		b.resetTimer = nil
	}
	b.state = StateClosed
	b.mu.Unlock()
}
