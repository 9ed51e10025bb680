package builder

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"codform/internal/storefront/formconfig"
	"codform/internal/storefront/render"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func inputSelector(label string) string {
	return fmt.Sprintf(`%s [name="%s"]`, render.SelForm, strings.ReplaceAll(label, `"`, `\"`))
}

// ValidateField checks one input and returns its error text, "" when valid.
func ValidateField(f *formconfig.InputField, value string) string {
	value = strings.TrimSpace(value)
	n := utf8.RuneCountInString(value)
	switch {
	case value == "":
		if f.Required {
			return orText(f.ErrorText, "This field is required")
		}
		return ""
	case f.MinLength > 0 && n < f.MinLength:
		return orText(f.ErrorText, fmt.Sprintf("Please enter at least %d characters", f.MinLength))
	case f.MaxLength > 0 && n > f.MaxLength:
		return orText(f.ErrorText, fmt.Sprintf("Please enter no more than %d characters", f.MaxLength))
	case f.IsEmail() && !emailPattern.MatchString(value):
		return orText(f.ErrorText, "Please enter a valid email address")
	}
	return ""
}

func orText(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Value reads the current value of a form input.
func (b *Builder) Value(label string) string {
	return b.opts.Page.Value(inputSelector(label))
}

// HandleInput records a keystroke: the value is applied and any shown error
// for the field is cleared at once.
func (b *Builder) HandleInput(label, value string) bool {
	if !b.opts.Page.SetValue(inputSelector(label), value) {
		return false
	}
	b.mu.Lock()
	_, had := b.errors[label]
	delete(b.errors, label)
	b.mu.Unlock()
	if had {
		b.showFieldError(label, "")
	}
	return true
}

// HandleBlur validates the field the shopper just left.
func (b *Builder) HandleBlur(label string) string {
	cfg := b.Config()
	if cfg == nil {
		return ""
	}
	f := cfg.Input(label)
	if f == nil || !f.IsVisible() {
		return ""
	}
	msg := ValidateField(f, b.Value(label))
	b.setFieldError(label, msg)
	return msg
}

// validateAll checks every visible input and shows each error.
func (b *Builder) validateAll() map[string]string {
	cfg := b.Config()
	if cfg == nil {
		return nil
	}
	invalid := make(map[string]string)
	for _, f := range cfg.Inputs() {
		if !f.IsVisible() {
			continue
		}
		msg := ValidateField(f, b.Value(f.Label))
		b.setFieldError(f.Label, msg)
		if msg != "" {
			invalid[f.Label] = msg
		}
	}
	return invalid
}

// Errors returns the field errors currently shown.
func (b *Builder) Errors() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.errors))
	for k, v := range b.errors {
		out[k] = v
	}
	return out
}

func (b *Builder) setFieldError(label, msg string) {
	b.mu.Lock()
	if msg == "" {
		delete(b.errors, label)
	} else {
		b.errors[label] = msg
	}
	b.mu.Unlock()
	b.showFieldError(label, msg)
}

func (b *Builder) showFieldError(label, msg string) {
	page := b.opts.Page
	errSel := fmt.Sprintf(`%s[data-error-for="%s"]`, render.SelFieldError, label)
	page.SetText(errSel, msg)
	if msg == "" {
		page.SetStyle(errSel, "display", "none")
		page.RemoveClass(inputSelector(label), render.ClassInvalidInput)
		return
	}
	page.SetStyle(errSel, "display", "block")
	page.AddClass(inputSelector(label), render.ClassInvalidInput)
}
