package resolver

import "fmt"

// Kind classifies a resolution failure.
type Kind int

const (
	NotFound Kind = iota + 1
	NotRunning
	// AddressUnavailable is common right after launch; callers may retry.
	AddressUnavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case NotRunning:
		return "not_running"
	case AddressUnavailable:
		return "address_unavailable"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrNotFound           = &Error{Kind: NotFound}
	ErrNotRunning         = &Error{Kind: NotRunning}
	ErrAddressUnavailable = &Error{Kind: AddressUnavailable}
)

// Error is a typed resolution failure. Its message is shown to end users.
type Error struct {
	Kind       Kind
	InstanceID string
	State      string
}

func (e *Error) Error() string {
	switch e.Kind {
	case NotFound:
		return "Instance not found"
	case NotRunning:
		return fmt.Sprintf("Instance is %s, not running", e.State)
	case AddressUnavailable:
		return "Instance has no public IP yet"
	default:
		return "Instance lookup failed"
	}
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether a later attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == AddressUnavailable
}
