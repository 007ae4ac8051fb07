package feed

import "errors"

// ErrSuperseded is returned by Activate when the synchronizer was deactivated or
// re-activated before the activation finished. The fetched result is discarded.
var ErrSuperseded = errors.New("activation superseded")

// ValidationError rejects a request before any I/O happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// GatewayError wraps a persistence failure.
type GatewayError struct {
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	return joinReason("gateway", e.Reason, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// StorageError wraps a blob storage failure.
type StorageError struct {
	Reason string
	Err    error
}

func (e *StorageError) Error() string {
	return joinReason("storage", e.Reason, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AuthorizationError is returned when the caller may not act on a message.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	return joinReason("authorization", e.Reason, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// SubscriptionError is returned when the event feed refuses a subscription.
type SubscriptionError struct {
	Reason string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return joinReason("subscription", e.Reason, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

func joinReason(kind, reason string, err error) string {
	msg := kind + ": " + reason
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}
