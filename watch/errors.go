package watch

import (
	"errors"
	"fmt"
)

// AuthError means the client-credentials exchange failed. The tick is
// aborted and the next scheduled tick tries again.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "auth: " + e.Err.Error() }

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error { return e.Err }

// FetchError is a transport, status, or payload failure against the upstream
// read API. Tracked state is left unchanged.
type FetchError struct {
	Identity string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Identity, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error { return e.Err }

// DeliveryError means an announcement could not be delivered. The
// transition was already committed and is not re-announced.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Channel, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrChannelUnavailable is wrapped in a DeliveryError when the destination
// is not (yet) known to the chat client.
var ErrChannelUnavailable = errors.New("channel not available")

// Fetchf builds a FetchError with a formatted cause.
func Fetchf(identity, format string, args ...any) error {
	return &FetchError{Identity: identity, Err: fmt.Errorf(format, args...)}
}

// ErrorClass returns a short label for err suitable for metrics.
func ErrorClass(err error) string {
	var (
		ae *AuthError
		fe *FetchError
		de *DeliveryError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ae):
		return "auth_error"
	case errors.As(err, &fe):
		return "fetch_error"
	case errors.As(err, &de):
		return "delivery_error"
	default:
		return "error"
	}
}
