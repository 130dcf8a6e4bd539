package watch

// State is the position of a monitor in its lifecycle.
type State int

const (
	StateInit State = iota
	StateAuthenticated
	StateCurrencyVerified
	StatePolling
	StatePriceReached
	StateProofCaptured
	StateNotified
	StateDone
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateInit:             "init",
	StateAuthenticated:    "authenticated",
	StateCurrencyVerified: "currency-verified",
	StatePolling:          "polling",
	StatePriceReached:     "price-reached",
	StateProofCaptured:    "proof-captured",
	StateNotified:         "notified",
	StateDone:             "done",
	StateFailed:           "failed",
	StateCancelled:        "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// canTransition: forward one step along the happy path, Polling onto
// itself, or any live state into Failed or Cancelled.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateFailed, StateCancelled:
		return true
	case StatePolling:
		return from == StateCurrencyVerified || from == StatePolling
	}
	return to == from+1
}
