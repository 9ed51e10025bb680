package formconfig

import (
	"encoding/json"
	"fmt"
)

type FieldType string

const (
	FieldInput     FieldType = "input"
	FieldSection   FieldType = "section"
	FieldButton    FieldType = "button"
	FieldSubscribe FieldType = "subscribe"
)

// SectionKind is the semantic meaning bound to a section's numeric id. The
// admin may reorder sections but never rebinds an id.
type SectionKind int

const (
	SectionUnknown SectionKind = iota
	SectionShippingRates
	SectionDiscountCode
	SectionTotals
	SectionUpsell
	SectionText
)

// Fixed section ids as stored in merchant configs.
const (
	SectionIDShippingRates = 13
	SectionIDDiscountCode  = 14
	SectionIDTotals        = 15
	SectionIDUpsell        = 16
	SectionIDText          = 17
)

// SectionKindOf maps a stored section id to its kind.
func SectionKindOf(id int) SectionKind {
	switch id {
	case SectionIDShippingRates:
		return SectionShippingRates
	case SectionIDDiscountCode:
		return SectionDiscountCode
	case SectionIDTotals:
		return SectionTotals
	case SectionIDUpsell:
		return SectionUpsell
	case SectionIDText:
		return SectionText
	default:
		return SectionUnknown
	}
}

func (k SectionKind) String() string {
	switch k {
	case SectionShippingRates:
		return "shipping"
	case SectionDiscountCode:
		return "discount"
	case SectionTotals:
		return "totals"
	case SectionUpsell:
		return "upsell"
	case SectionText:
		return "text"
	default:
		return "unknown"
	}
}

// Field is one entry of FormConfig.Fields. The concrete types are
// *InputField, *SectionField, *ButtonField and *SubscribeField.
type Field interface {
	FieldID() int
	FieldType() FieldType
	IsVisible() bool
	field()
}

// Base carries the attributes shared by every field kind. A missing
// "visible" key means visible.
type Base struct {
	ID      int       `json:"id"`
	Type    FieldType `json:"type"`
	Visible *bool     `json:"visible,omitempty"`
	Movable bool      `json:"movable,omitempty"`
}

func (b *Base) FieldID() int         { return b.ID }
func (b *Base) FieldType() FieldType { return b.Type }
func (b *Base) IsVisible() bool      { return b.Visible == nil || *b.Visible }
func (b *Base) field()               {}

// InputField is a shopper text entry. Label is the immutable internal key
// (first_name, phone_number, ...); DisplayLabel is what the merchant edits.
type InputField struct {
	Base
	Label        string `json:"label"`
	DisplayLabel string `json:"displayLabel"`
	Placeholder  string `json:"placeholder,omitempty"`
	InputType    string `json:"inputType,omitempty"`
	Required     bool   `json:"required"`
	MinLength    int    `json:"minLength,omitempty"`
	MaxLength    int    `json:"maxLength,omitempty"`
	ErrorText    string `json:"errorText,omitempty"`
	ShowIcon     bool   `json:"showIcon,omitempty"`
	Icon         string `json:"icon,omitempty"`
}

// IsEmail reports whether the field gets the email format check.
func (f *InputField) IsEmail() bool {
	return f.InputType == "email" || f.Label == "email"
}

// HTMLType is the input element type attribute.
func (f *InputField) HTMLType() string {
	switch {
	case f.IsEmail():
		return "email"
	case f.InputType == "tel" || f.Label == "phone_number":
		return "tel"
	case f.InputType == "textarea":
		return "textarea"
	default:
		return "text"
	}
}

// Caption is the visible label, falling back to the internal key.
func (f *InputField) Caption() string {
	if f.DisplayLabel != "" {
		return f.DisplayLabel
	}
	return f.Label
}

type SectionField struct {
	Base
	Totals   *TotalsSettings   `json:"totalSettings,omitempty"`
	Shipping *ShippingSettings `json:"shippingSettings,omitempty"`
	Discount *DiscountSettings `json:"discountSettings,omitempty"`
	Upsell   *UpsellSettings   `json:"upsellSettings,omitempty"`
	Text     *TextSettings     `json:"textSettings,omitempty"`
}

// Section is the kind bound to this section's id.
func (s *SectionField) Section() SectionKind {
	return SectionKindOf(s.ID)
}

type TotalsSettings struct {
	SubtotalLabel string `json:"subtotalLabel,omitempty"`
	ShippingLabel string `json:"shippingLabel,omitempty"`
	TotalLabel    string `json:"totalLabel,omitempty"`
	FreeLabel     string `json:"freeLabel,omitempty"`
}

type ShippingSettings struct {
	Title     string `json:"title,omitempty"`
	FreeLabel string `json:"freeLabel,omitempty"`
}

type DiscountSettings struct {
	Placeholder string `json:"placeholder,omitempty"`
	ButtonText  string `json:"buttonText,omitempty"`
}

type UpsellSettings struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// TextSettings.Content is markdown.
type TextSettings struct {
	Content string `json:"content,omitempty"`
	Align   string `json:"align,omitempty"`
}

type ButtonField struct {
	Base
	Settings ButtonSettings `json:"buttonSettings"`
}

type ButtonSettings struct {
	Text            string `json:"text"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	BorderColor     string `json:"borderColor,omitempty"`
	BorderRadius    int    `json:"borderRadius,omitempty"`
	FontSize        int    `json:"fontSize,omitempty"`
	Animation       string `json:"animation,omitempty"`
	Icon            string `json:"icon,omitempty"`
}

type SubscribeField struct {
	Base
	Settings SubscribeSettings `json:"subscribeSettings"`
}

type SubscribeSettings struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	PrivacyText string `json:"privacyText,omitempty"`
	Checked     bool   `json:"checked,omitempty"`
}

// Fields decodes the discriminated field list. Entries with an unknown type
// are dropped.
type Fields []Field

func (fs *Fields) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("formconfig: fields: %w", err)
	}
	out := make(Fields, 0, len(raws))
	for i, raw := range raws {
		var head struct {
			Type FieldType `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("formconfig: field %d: %w", i, err)
		}
		var f Field
		switch head.Type {
		case FieldInput:
			f = &InputField{}
		case FieldSection:
			f = &SectionField{}
		case FieldButton:
			f = &ButtonField{}
		case FieldSubscribe:
			f = &SubscribeField{}
		default:
			continue
		}
		if err := json.Unmarshal(raw, f); err != nil {
			return fmt.Errorf("formconfig: field %d (%s): %w", i, head.Type, err)
		}
		out = append(out, f)
	}
	*fs = out
	return nil
}
