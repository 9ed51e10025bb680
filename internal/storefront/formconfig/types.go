// Package formconfig describes the merchant form configuration served by
// /api/public-form-config and consumed by the storefront runtime.
package formconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type FormType string

const (
	FormTypePopup    FormType = "POPUP"
	FormTypeEmbedded FormType = "EMBEDDED"
)

// Normalize maps unknown or lower-case values onto the two supported modes.
func (t FormType) Normalize() FormType {
	if strings.EqualFold(string(t), string(FormTypePopup)) {
		return FormTypePopup
	}
	return FormTypeEmbedded
}

// Response is the public config endpoint payload.
type Response struct {
	Form     FormConfig     `json:"form"`
	Shipping []ShippingRate `json:"shipping"`
}

type FormConfig struct {
	FormType  FormType  `json:"formType"`
	Style     Style     `json:"style"`
	BuyButton BuyButton `json:"buyButton"`
	Fields    Fields    `json:"fields"`

	Title                 string `json:"title"`
	SuccessMessage        string `json:"successMessage"`
	ErrorMessage          string `json:"errorMessage"`
	BlockedMessage        string `json:"blockedMessage,omitempty"`
	RequiredFieldsMessage string `json:"requiredFieldsMessage,omitempty"`
	WhatsAppMessage       string `json:"whatsappMessage,omitempty"`
	FreeShippingLabel     string `json:"freeShippingLabel,omitempty"`
	Currency              string `json:"currency,omitempty"`
}

// Style is pure presentation, turned into CSS by the renderer.
type Style struct {
	PrimaryColor    string `json:"primaryColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	BorderColor     string `json:"borderColor,omitempty"`
	BorderWidth     int    `json:"borderWidth,omitempty"`
	BorderRadius    int    `json:"borderRadius,omitempty"`
	Shadow          bool   `json:"shadow,omitempty"`
	FontFamily      string `json:"fontFamily,omitempty"`
	FontSize        int    `json:"fontSize,omitempty"`
	RTL             bool   `json:"rtl,omitempty"`
	HideLabels      bool   `json:"hideLabels,omitempty"`
}

// BuyButton configures the popup trigger. Ignored in EMBEDDED mode.
type BuyButton struct {
	Text            string `json:"text"`
	Subtitle        string `json:"subtitle,omitempty"`
	Icon            string `json:"icon,omitempty"`
	Animation       string `json:"animation,omitempty"`
	Position        string `json:"position,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	BorderColor     string `json:"borderColor,omitempty"`
	BorderRadius    int    `json:"borderRadius,omitempty"`
	Sticky          bool   `json:"sticky,omitempty"`
}

// Visible returns the fields to render, in configured order.
func (c *FormConfig) Visible() []Field {
	out := make([]Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.IsVisible() {
			out = append(out, f)
		}
	}
	return out
}

// Inputs returns every input field, visible or not.
func (c *FormConfig) Inputs() []*InputField {
	var out []*InputField
	for _, f := range c.Fields {
		if in, ok := f.(*InputField); ok {
			out = append(out, in)
		}
	}
	return out
}

// Input looks an input field up by its internal label.
func (c *FormConfig) Input(label string) *InputField {
	for _, in := range c.Inputs() {
		if in.Label == label {
			return in
		}
	}
	return nil
}

// Section returns the first section of the given kind.
func (c *FormConfig) Section(kind SectionKind) *SectionField {
	for _, f := range c.Fields {
		if s, ok := f.(*SectionField); ok && s.Section() == kind {
			return s
		}
	}
	return nil
}

// ShippingRate is one selectable delivery option. Price is in major units.
type ShippingRate struct {
	ID         FlexID          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Conditions json.RawMessage `json:"conditions,omitempty"`
}

// FlexID accepts ids sent either as JSON numbers or strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("formconfig: invalid id %s", string(data))
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }
