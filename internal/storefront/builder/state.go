package builder

// State is the builder lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateConfigLoaded
	StateRendered
	StateIdle
	StateSubmitting
	StateSuccessDisplayed
	StateErrorDisplayed
	StateBlockedDisplayed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateConfigLoaded:
		return "CONFIG_LOADED"
	case StateRendered:
		return "RENDERED"
	case StateIdle:
		return "IDLE"
	case StateSubmitting:
		return "SUBMITTING"
	case StateSuccessDisplayed:
		return "SUCCESS_DISPLAYED"
	case StateErrorDisplayed:
		return "ERROR_DISPLAYED"
	case StateBlockedDisplayed:
		return "BLOCKED_DISPLAYED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// canSubmit lists the states a submission may start from.
func (s State) canSubmit() bool {
	return s == StateIdle || s == StateErrorDisplayed || s == StateSuccessDisplayed
}

// Outcome is the terminal action taken for one submission.
type Outcome string

const (
	OutcomeInvalid  Outcome = "invalid"
	OutcomeMessage  Outcome = "message"
	OutcomeRedirect Outcome = "redirect"
	OutcomeWhatsApp Outcome = "whatsapp"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeFailed   Outcome = "failed"
)

// Host performs the navigation side effects a submission can end in.
type Host interface {
	Navigate(url string)
	OpenTab(url string)
}
