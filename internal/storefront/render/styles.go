package render

import (
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"codform/internal/storefront/formconfig"
)

var cssValue = regexp.MustCompile(`^[#a-zA-Z0-9(),.%\s-]*$`)

// safeCSS drops values that could break out of a declaration.
func safeCSS(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" || !cssValue.MatchString(v) {
		return fallback
	}
	return v
}

var fontFamily = regexp.MustCompile(`^[a-zA-Z0-9 ,'"-]*$`)

// Styles renders the computed stylesheet for a form configuration.
func (r *Renderer) Styles(cfg *formconfig.FormConfig) string {
	s := cfg.Style
	primary := safeCSS(s.PrimaryColor, "#111827")
	text := safeCSS(s.TextColor, "#111827")
	bg := safeCSS(s.BackgroundColor, "#ffffff")
	border := safeCSS(s.BorderColor, "#e5e7eb")

	var b strings.Builder
	b.WriteString(`<style id="formino-styles">`)
	fmt.Fprintf(&b, ".formino-form-container{background:%s;color:%s;border:%dpx solid %s;border-radius:%dpx;padding:16px;",
		bg, text, s.BorderWidth, border, s.BorderRadius)
	if s.Shadow {
		b.WriteString("box-shadow:0 4px 14px rgba(0,0,0,.12);")
	}
	if s.FontSize > 0 {
		fmt.Fprintf(&b, "font-size:%dpx;", s.FontSize)
	}
	if s.FontFamily != "" && fontFamily.MatchString(s.FontFamily) {
		fmt.Fprintf(&b, "font-family:%s;", s.FontFamily)
	}
	b.WriteString("}")
	if s.RTL {
		b.WriteString(".formino-form-container{direction:rtl;text-align:right}")
	}
	if s.HideLabels {
		b.WriteString(".formino-label{display:none}")
	}
	fmt.Fprintf(&b, ".formino-input{width:100%%;border:1px solid %s;border-radius:%dpx;padding:10px}", border, s.BorderRadius)
	b.WriteString(".formino-error{color:#dc2626;font-size:.85em;margin-top:4px}")
	b.WriteString(".formino-input-invalid{border-color:#dc2626}")
	fmt.Fprintf(&b, ".formino-submit-button{background:%s;color:#fff;width:100%%;padding:12px;border:0;border-radius:%dpx;position:relative}", primary, s.BorderRadius)
	b.WriteString(".formino-submit-button.formino-loading .formino-button-text{visibility:hidden}")
	b.WriteString(".formino-submit-button .formino-spinner{display:none}")
	b.WriteString(".formino-submit-button.formino-loading .formino-spinner{display:inline-block;position:absolute;left:50%;top:50%}")
	b.WriteString(".formino-modal-overlay{position:fixed;inset:0;background:rgba(0,0,0,.5);align-items:center;justify-content:center;z-index:9999}")
	b.WriteString(".formino-message-popup{position:fixed;inset:0;align-items:center;justify-content:center;z-index:10000}")
	b.WriteString(".formino-message-text{white-space:pre-line}")
	b.WriteString(".formino-sticky{position:fixed;left:0;right:0;z-index:9998}")
	b.WriteString(".formino-sticky-bottom{bottom:0}.formino-sticky-top{top:0}")
	b.WriteString("</style>")
	return b.String()
}

// buttonStyle is the inline style of a configured button.
func buttonStyle(bg, fg, border string, radius, fontSize int) template.CSS {
	var parts []string
	if v := safeCSS(bg, ""); v != "" {
		parts = append(parts, "background: "+v)
	}
	if v := safeCSS(fg, ""); v != "" {
		parts = append(parts, "color: "+v)
	}
	if v := safeCSS(border, ""); v != "" {
		parts = append(parts, "border: 1px solid "+v)
	}
	if radius > 0 {
		parts = append(parts, fmt.Sprintf("border-radius: %dpx", radius))
	}
	if fontSize > 0 {
		parts = append(parts, fmt.Sprintf("font-size: %dpx", fontSize))
	}
	if len(parts) == 0 {
		return ""
	}
	return template.CSS(strings.Join(parts, "; ") + ";")
}
