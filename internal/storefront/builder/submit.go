package builder

import (
	"context"
	"errors"
	"strings"
	"time"

	"codform/internal/storefront/checkout"
	"codform/internal/storefront/formconfig"
	"codform/internal/storefront/render"
)

const (
	defaultSuccessMessage  = "Thank you! Your order has been placed."
	defaultErrorMessage    = "Something went wrong while placing your order. Please try again."
	defaultBlockedMessage  = "We could not accept this order."
	defaultRequiredMessage = "Please fill in the required fields."
	defaultWhatsAppMessage = "Your order was received. Please confirm it on WhatsApp."
)

// Submit validates the form, sends the order and performs the outcome the
// backend asks for.
func (b *Builder) Submit(ctx context.Context) (Outcome, error) {
	b.mu.Lock()
	switch {
	case b.state == StateClosed:
		b.mu.Unlock()
		return OutcomeFailed, ErrClosed
	case !b.state.canSubmit():
		state := b.state
		b.mu.Unlock()
		b.logger.Debug("builder: submit ignored in state %s", state)
		return "", ErrNotReady
	}
	cfg := b.config
	b.mu.Unlock()

	if invalid := b.validateAll(); len(invalid) > 0 {
		b.ShowMessage(render.MessageValidation, "", orText(cfg.RequiredFieldsMessage, defaultRequiredMessage))
		return OutcomeInvalid, ErrValidation
	}

	b.setState(StateSubmitting)
	order := b.orderRequest(cfg)
	shortcodes := b.shortcodes(order)

	result, err := b.send(ctx, order)
	if err != nil {
		if errors.Is(err, context.Canceled) && b.State() == StateClosed {
			return OutcomeFailed, ErrClosed
		}
		b.logger.Error("builder: create order failed: %v", err)
		b.fail(cfg, "")
		return OutcomeFailed, err
	}

	if result.Blocked() {
		b.blocked(cfg, result.Message)
		return OutcomeBlocked, nil
	}
	if !result.Success {
		b.logger.Warn("builder: order rejected: %s %s", result.Error, result.Message)
		b.fail(cfg, result.Message)
		return OutcomeFailed, nil
	}
	return b.dispatch(cfg, result, shortcodes), nil
}

// send performs the request with the submit button in its loading state.
func (b *Builder) send(ctx context.Context, order *checkout.Request) (*checkout.Result, error) {
	page := b.opts.Page
	page.SetAttr(render.SelSubmitButton, "disabled", "disabled")
	page.AddClass(render.SelSubmitButton, render.ClassLoading)
	defer func() {
		page.RemoveAttr(render.SelSubmitButton, "disabled")
		page.RemoveClass(render.SelSubmitButton, render.ClassLoading)
	}()

	if b.opts.Backend == nil {
		return nil, errors.New("builder: no backend")
	}
	ctx, cancel := b.scope(ctx)
	defer cancel()
	return b.opts.Backend.CreateOrder(ctx, order)
}

func (b *Builder) dispatch(cfg *formconfig.FormConfig, result *checkout.Result, sc formconfig.ShortcodeValues) Outcome {
	redirect := result.Redirect
	if redirect == nil {
		redirect = &checkout.Redirect{Type: checkout.RedirectDefault}
	}
	host := b.opts.Host

	switch redirect.Type {
	case checkout.RedirectCustom:
		if url := strings.TrimSpace(redirect.RedirectURL); url != "" && host != nil {
			b.Reset()
			host.Navigate(url)
			return OutcomeRedirect
		}
	case checkout.RedirectWhatsApp:
		if url := strings.TrimSpace(redirect.RedirectURL); url != "" && host != nil {
			host.OpenTab(url)
			b.Reset()
			b.ShowMessage(render.MessageWhatsApp, "", formconfig.Expand(orText(cfg.WhatsAppMessage, defaultWhatsAppMessage), sc))
			b.setState(StateSuccessDisplayed)
			return OutcomeWhatsApp
		}
	case checkout.RedirectDefault, "":
		if url := strings.TrimSpace(redirect.OrderStatusURL); url != "" && host != nil {
			b.Reset()
			host.Navigate(url)
			return OutcomeRedirect
		}
	}

	text := redirect.ThankYouMessage
	if strings.TrimSpace(text) == "" {
		text = orText(cfg.SuccessMessage, defaultSuccessMessage)
	}
	text = formconfig.Expand(formconfig.UnescapeNewlines(text), sc)
	b.Reset()
	b.ShowMessage(render.MessageSuccess, "", text)
	b.setState(StateSuccessDisplayed)
	return OutcomeMessage
}

// blocked shows the fraud message verbatim and resets once it had time to
// be read.
func (b *Builder) blocked(cfg *formconfig.FormConfig, message string) {
	text := message
	if strings.TrimSpace(text) == "" {
		text = orText(cfg.BlockedMessage, defaultBlockedMessage)
	}
	b.ShowMessage(render.MessageBlocked, "", text)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return
	}
	b.state = StateBlockedDisplayed
	if b.resetTimer != nil {
		b.resetTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(b.opts.BlockedResetDelay, func() {
		b.mu.Lock()
		current := b.resetTimer == timer
		b.mu.Unlock()
		if current {
			b.Reset()
		}
	})
	b.resetTimer = timer
}

func (b *Builder) fail(cfg *formconfig.FormConfig, message string) {
	text := message
	if strings.TrimSpace(text) == "" {
		text = orText(cfg.ErrorMessage, defaultErrorMessage)
	}
	b.ShowMessage(render.MessageError, "", formconfig.UnescapeNewlines(text))
	b.setState(StateErrorDisplayed)
}

func (b *Builder) orderRequest(cfg *formconfig.FormConfig) *checkout.Request {
	fields := make(map[string]string)
	for _, in := range cfg.Inputs() {
		if in.IsVisible() {
			fields[in.Label] = strings.TrimSpace(b.Value(in.Label))
		}
	}
	if code := b.opts.Page.Value(render.SelForm + ` input[name="discount_code"]`); code != "" {
		fields["discount_code"] = strings.TrimSpace(code)
	}

	totals := b.CalculateTotals()
	order := &checkout.Request{
		Shop:      b.opts.Shop,
		Fields:    fields,
		Subscribe: b.opts.Page.Value(render.SelForm+` input[name="subscribe"]`) == "true",
		Quantity:  1,
		Totals: checkout.Totals{
			Subtotal: totals.Subtotal,
			Shipping: totals.Shipping,
			Total:    totals.Total,
			Currency: totals.Currency,
		},
		Config: cfg,
	}
	if rate := b.CurrentShipping(); rate != nil {
		order.Shipping = rate
		order.ShippingMethod = rate.ID.String()
	}
	if d := b.opts.Detector; d != nil {
		order.Product = d.Product()
		order.VariantID = d.CurrentVariantID()
		order.Quantity = d.Quantity()
	}
	return order
}

func (b *Builder) shortcodes(order *checkout.Request) formconfig.ShortcodeValues {
	sc := formconfig.ShortcodeValues{
		FirstName:     order.Field("first_name"),
		OrderTotal:    render.FormatMoney(order.Totals.Total, order.Totals.Currency),
		OrderSubtotal: render.FormatMoney(order.Totals.Subtotal, order.Totals.Currency),
	}
	if order.Product != nil {
		sc.ProductName = order.Product.Title
	}
	return sc
}
