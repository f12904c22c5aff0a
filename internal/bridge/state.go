package bridge

// State is the lifecycle position of a bridge session. States only move
// forward.
type State int

const (
	ResolvingAddress State = iota
	Connecting
	ShellNegotiating
	Active
	Closing
	Closed
	Failed
)

var stateNames = [...]string{
	ResolvingAddress: "resolving_address",
	Connecting:       "connecting",
	ShellNegotiating: "shell_negotiating",
	Active:           "active",
	Closing:          "closing",
	Closed:           "closed",
	Failed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// canMove reports whether from → to is a legal transition: one step forward,
// Closing from any state before it, or Failed from any non-terminal state.
func canMove(from, to State) bool {
	switch {
	case from.Terminal():
		return false
	case to == Failed:
		return true
	case to == Closing:
		return from < Closing
	default:
		return to == from+1
	}
}
