package payment

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindGeneric Kind = iota
	KindDeclined
	KindRateLimited
	KindInvalidRequest
	KindAuthFailed
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindDeclined:
		return "declined"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	case KindAuthFailed:
		return "auth_failed"
	case KindNetwork:
		return "network"
	default:
		return "generic"
	}
}

// Error is a classified gateway failure. Message is safe to show to the
// customer; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("payment %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var defaultMessages = map[Kind]string{
	KindDeclined:       "Your card was declined.",
	KindRateLimited:    "Rate limit error",
	KindInvalidRequest: "Invalid parameters",
	KindAuthFailed:     "Not authenticated",
	KindNetwork:        "Network error",
	KindGeneric:        "Something went wrong. You were not charged. Please try again.",
}

// NewError builds an Error with the customer facing message for kind.
// Declines keep the processor's own message when there is one.
func NewError(kind Kind, message string, err error) *Error {
	if kind != KindDeclined || message == "" {
		message = defaultMessages[kind]
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of a payment error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return KindGeneric, false
}
