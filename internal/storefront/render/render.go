// Package render turns a form configuration into storefront markup.
//
// Markup is produced once per mount. After that only the live elements
// (LiveSelectors) are rewritten in place by the builder.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"codform/internal/storefront/formconfig"
)

// Selectors of the elements updated in place when totals change.
const (
	SelSubtotal      = ".formino-subtotal"
	SelShippingCost  = ".formino-shipping-cost"
	SelTotalAmount   = ".formino-total-amount"
	SelOrderTotal    = ".formino-order-total"
	SelOrderSubtotal = ".formino-order-subtotal"

	SelContainer      = ".formino-form-container"
	SelForm           = ".formino-form"
	SelTrigger        = "#formino-popup-trigger"
	SelOverlay        = "#formino-modal-overlay"
	SelMessagePopup   = "#formino-message-popup"
	SelSubmitButton   = ".formino-submit-button"
	SelStyles         = "#formino-styles"
	SelField          = ".formino-field"
	SelFieldError     = ".formino-error"
	ClassLoading      = "formino-loading"
	ClassInvalidInput = "formino-input-invalid"
)

// LiveSelectors lists every element UpdateTotals touches.
var LiveSelectors = []string{SelSubtotal, SelShippingCost, SelTotalAmount, SelOrderTotal, SelOrderSubtotal}

// Message popup kinds.
const (
	MessageSuccess    = "success"
	MessageError      = "error"
	MessageBlocked    = "blocked"
	MessageValidation = "validation"
	MessageWhatsApp   = "whatsapp"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type Renderer struct {
	tmpl   *template.Template
	policy *bluemonday.Policy
	md     goldmark.Markdown
}

func New() *Renderer {
	tmpl := template.Must(template.New("fields").ParseFS(templateFS, "templates/*.tmpl"))

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "div")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &Renderer{
		tmpl:   tmpl,
		policy: policy,
		md:     goldmark.New(),
	}
}

// View is everything needed to render the form once.
type View struct {
	Config           *formconfig.FormConfig
	Shipping         []formconfig.ShippingRate
	SelectedShipping formconfig.FlexID
	Totals           Totals
	ProductName      string
	Values           map[string]string
	Errors           map[string]string
}

// Form renders the container and every visible field, in configured order.
func (r *Renderer) Form(v View) (string, error) {
	var body strings.Builder
	for _, f := range v.Config.Visible() {
		frag, err := r.Field(f, v)
		if err != nil {
			return "", err
		}
		body.WriteString(frag)
	}

	data := struct {
		RTL      bool
		FormType formconfig.FormType
		Title    template.HTML
		Body     template.HTML
	}{
		RTL:      v.Config.Style.RTL,
		FormType: v.Config.FormType.Normalize(),
		Title:    r.rich(v.Config.Title, v),
		Body:     template.HTML(body.String()),
	}
	return r.exec("form", data)
}

// Field renders one field. Sections dispatch on their fixed kind; unknown
// sections render nothing.
func (r *Renderer) Field(f formconfig.Field, v View) (string, error) {
	switch field := f.(type) {
	case *formconfig.InputField:
		return r.input(field, v)
	case *formconfig.SectionField:
		switch field.Section() {
		case formconfig.SectionTotals:
			return r.totals(field, v)
		case formconfig.SectionShippingRates:
			return r.shipping(field, v)
		case formconfig.SectionDiscountCode:
			return r.discount(field)
		case formconfig.SectionUpsell:
			return r.upsell(field)
		case formconfig.SectionText:
			return r.text(field)
		default:
			return "", nil
		}
	case *formconfig.ButtonField:
		return r.button(field, v)
	case *formconfig.SubscribeField:
		return r.subscribe(field)
	default:
		return "", fmt.Errorf("render: unsupported field %T", f)
	}
}

func (r *Renderer) input(f *formconfig.InputField, v View) (string, error) {
	icon := f.Icon
	if icon == "" {
		icon = f.Label
	}
	return r.exec("input", struct {
		Field      *formconfig.InputField
		HideLabels bool
		Icon       string
		Value      string
		Error      string
	}{
		Field:      f,
		HideLabels: v.Config.Style.HideLabels,
		Icon:       icon,
		Value:      v.Values[f.Label],
		Error:      v.Errors[f.Label],
	})
}

func (r *Renderer) totals(f *formconfig.SectionField, v View) (string, error) {
	s := formconfig.TotalsSettings{}
	if f.Totals != nil {
		s = *f.Totals
	}
	totals := v.Totals
	if s.FreeLabel != "" {
		totals.FreeLabel = s.FreeLabel
	}
	return r.exec("section_totals", struct {
		ID                        int
		Subtotal, Shipping, Total string
		Totals                    Totals
	}{
		ID:       f.ID,
		Subtotal: orDefault(s.SubtotalLabel, "Subtotal"),
		Shipping: orDefault(s.ShippingLabel, "Shipping"),
		Total:    orDefault(s.TotalLabel, "Total"),
		Totals:   totals,
	})
}

type rateView struct {
	ID       string
	Name     string
	Price    string
	Selected bool
}

func (r *Renderer) shipping(f *formconfig.SectionField, v View) (string, error) {
	s := formconfig.ShippingSettings{}
	if f.Shipping != nil {
		s = *f.Shipping
	}
	free := orDefault(s.FreeLabel, v.Totals.FreeLabel)
	rates := make([]rateView, 0, len(v.Shipping))
	for i, rate := range v.Shipping {
		selected := rate.ID == v.SelectedShipping
		if v.SelectedShipping == "" && i == 0 {
			selected = true
		}
		rates = append(rates, rateView{
			ID:       rate.ID.String(),
			Name:     rate.Name,
			Price:    ShippingPriceText(rate.Price, v.Totals.Currency, free),
			Selected: selected,
		})
	}
	return r.exec("section_shipping", struct {
		ID    int
		Title string
		Rates []rateView
	}{ID: f.ID, Title: s.Title, Rates: rates})
}

func (r *Renderer) discount(f *formconfig.SectionField) (string, error) {
	s := formconfig.DiscountSettings{}
	if f.Discount != nil {
		s = *f.Discount
	}
	return r.exec("section_discount", struct {
		ID                      int
		Placeholder, ButtonText string
	}{ID: f.ID, Placeholder: orDefault(s.Placeholder, "Discount code"), ButtonText: orDefault(s.ButtonText, "Apply")})
}

func (r *Renderer) upsell(f *formconfig.SectionField) (string, error) {
	s := formconfig.UpsellSettings{}
	if f.Upsell != nil {
		s = *f.Upsell
	}
	return r.exec("section_upsell", struct {
		ID                 int
		Title, Description string
	}{ID: f.ID, Title: s.Title, Description: s.Description})
}

func (r *Renderer) text(f *formconfig.SectionField) (string, error) {
	s := formconfig.TextSettings{}
	if f.Text != nil {
		s = *f.Text
	}
	content, err := r.Markdown(s.Content)
	if err != nil {
		return "", err
	}
	align := ""
	switch s.Align {
	case "left", "right", "center", "justify":
		align = s.Align
	}
	return r.exec("section_text", struct {
		ID      int
		Align   string
		Content template.HTML
	}{ID: f.ID, Align: align, Content: content})
}

func (r *Renderer) button(f *formconfig.ButtonField, v View) (string, error) {
	s := f.Settings
	return r.exec("button", struct {
		ID        int
		Text      template.HTML
		Animation string
		Style     template.CSS
	}{
		ID:        f.ID,
		Text:      r.rich(orDefault(s.Text, "Complete order"), v),
		Animation: s.Animation,
		Style:     buttonStyle(s.BackgroundColor, s.TextColor, s.BorderColor, s.BorderRadius, s.FontSize),
	})
}

func (r *Renderer) subscribe(f *formconfig.SubscribeField) (string, error) {
	s := f.Settings
	return r.exec("subscribe", struct {
		ID          int
		Label       string
		Description string
		Privacy     template.HTML
		Checked     bool
	}{
		ID:          f.ID,
		Label:       s.Label,
		Description: s.Description,
		Privacy:     r.Sanitize(s.PrivacyText),
		Checked:     s.Checked,
	})
}

// PopupTrigger renders the buy button that opens the modal.
func (r *Renderer) PopupTrigger(cfg *formconfig.FormConfig, v View) (string, error) {
	b := cfg.BuyButton
	position := "bottom"
	if b.Position == "top" {
		position = "top"
	}
	return r.exec("trigger", struct {
		Text      template.HTML
		Subtitle  string
		Icon      string
		Animation string
		Sticky    bool
		Position  string
		Style     template.CSS
	}{
		Text:      r.rich(orDefault(b.Text, "Buy now"), v),
		Subtitle:  b.Subtitle,
		Icon:      b.Icon,
		Animation: b.Animation,
		Sticky:    b.Sticky,
		Position:  position,
		Style:     buttonStyle(b.BackgroundColor, b.TextColor, b.BorderColor, b.BorderRadius, 0),
	})
}

// Modal wraps rendered form markup in the hidden overlay.
func (r *Renderer) Modal(formHTML string) (string, error) {
	return r.exec("modal", template.HTML(formHTML))
}

// MessagePopup renders the in-page message dialog. Text keeps its line
// breaks; the stylesheet uses pre-line.
func (r *Renderer) MessagePopup(kind, title, text string) (string, error) {
	return r.exec("message", struct {
		Kind, Title, Text, Close string
	}{Kind: kind, Title: title, Text: text, Close: "OK"})
}

// Markdown converts merchant markdown to sanitized HTML.
func (r *Renderer) Markdown(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// Sanitize strips anything but safe inline HTML from merchant text.
func (r *Renderer) Sanitize(s string) template.HTML {
	return template.HTML(r.policy.Sanitize(s))
}

// rich escapes merchant text and swaps the total shortcodes for live spans so
// later price changes can update them in place.
func (r *Renderer) rich(text string, v View) template.HTML {
	escaped := template.HTMLEscapeString(text)
	escaped = strings.NewReplacer(
		formconfig.ShortcodeOrderTotal, `<span class="formino-order-total">`+template.HTMLEscapeString(v.Totals.TotalText())+`</span>`,
		formconfig.ShortcodeOrderSubtotal, `<span class="formino-order-subtotal">`+template.HTMLEscapeString(v.Totals.SubtotalText())+`</span>`,
		formconfig.ShortcodeProductName, template.HTMLEscapeString(v.ProductName),
		formconfig.ShortcodeFirstName, template.HTMLEscapeString(v.Values["first_name"]),
	).Replace(escaped)
	return template.HTML(escaped)
}

func (r *Renderer) exec(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
