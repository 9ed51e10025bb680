package builder

import (
	"context"
	"fmt"
	"strings"
)

// UIEvent is a shopper interaction relayed by the storefront loader.
type UIEvent struct {
	// Type is one of click, input, blur, change, submit.
	Type string `json:"type"`
	// Target is the element: a form input label or name, or a click target
	// such as "#formino-popup-trigger".
	Target string `json:"target"`
	Value  string `json:"value,omitempty"`
}

// Click targets understood by HandleEvent.
const (
	TargetTrigger      = "#formino-popup-trigger"
	TargetModalClose   = ".formino-modal-close"
	TargetOverlay      = "#formino-modal-overlay"
	TargetMessageClose = ".formino-message-close"
	TargetSubmit       = ".formino-submit-button"
)

// HandleEvent routes one shopper interaction. Product page inputs go to the
// detector, form inputs to validation, clicks to the popups. A submit
// returns its outcome.
func (b *Builder) HandleEvent(ctx context.Context, ev UIEvent) (Outcome, error) {
	if b.State() == StateClosed {
		return "", ErrClosed
	}
	switch strings.ToLower(ev.Type) {
	case "click":
		switch ev.Target {
		case TargetTrigger:
			b.OpenPopup()
		case TargetModalClose, TargetOverlay:
			b.ClosePopup()
		case TargetMessageClose:
			b.DismissMessage()
		case TargetSubmit:
			return b.Submit(ctx)
		default:
			return "", fmt.Errorf("builder: unknown click target %q", ev.Target)
		}
	case "input":
		if !b.HandleInput(ev.Target, ev.Value) {
			return "", fmt.Errorf("builder: unknown input %q", ev.Target)
		}
	case "blur":
		b.HandleBlur(ev.Target)
	case "change":
		switch {
		case ev.Target == "shipping_method":
			b.SelectShipping(ev.Value)
		case ev.Target == "subscribe":
			b.HandleInput(ev.Target, ev.Value)
		case b.opts.Detector != nil && b.opts.Detector.HandleChange(ev.Target, ev.Value):
		default:
			b.HandleInput(ev.Target, ev.Value)
		}
	case "submit":
		return b.Submit(ctx)
	default:
		return "", fmt.Errorf("builder: unknown event type %q", ev.Type)
	}
	return "", nil
}
