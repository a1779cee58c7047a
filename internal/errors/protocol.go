package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a client-visible rejection. The kind decides the machine
// readable prefix on OK and CLOSED messages.
type Kind int

const (
	// KindNotice is a plain rejection with a user-facing reason.
	KindNotice Kind = iota
	// KindAuthRequired means the client must complete an AUTH exchange first.
	KindAuthRequired
	// KindRestricted means the authenticated user lacks access.
	KindRestricted
	// KindInvalid is a structural or tagging error in the submitted message.
	KindInvalid
	// KindInternal is an unexpected server-side failure. The wire message is
	// opaque; the cause is logged server-side only.
	KindInternal
)

// ProtocolError is the tagged error returned by the group state machine and
// translated by the connection layer into exactly one OK or CLOSED message.
type ProtocolError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *ProtocolError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error { return e.cause }

// ClientMessage renders the error for OK / CLOSED frames with the standard
// machine-readable prefixes.
func (e *ProtocolError) ClientMessage() string {
	switch e.Kind {
	case KindAuthRequired:
		return "auth-required: " + e.Message
	case KindRestricted:
		return "restricted: " + e.Message
	case KindInvalid:
		return "invalid: " + e.Message
	case KindInternal:
		return "error: internal"
	default:
		return e.Message
	}
}

func Notice(msg string) *ProtocolError {
	return &ProtocolError{Kind: KindNotice, Message: msg}
}

func Noticef(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Kind: KindNotice, Message: fmt.Sprintf(format, args...)}
}

func AuthRequired(msg string) *ProtocolError {
	return &ProtocolError{Kind: KindAuthRequired, Message: msg}
}

func Restricted(msg string) *ProtocolError {
	return &ProtocolError{Kind: KindRestricted, Message: msg}
}

func Invalid(msg string) *ProtocolError {
	return &ProtocolError{Kind: KindInvalid, Message: msg}
}

func Internal(cause error) *ProtocolError {
	return &ProtocolError{Kind: KindInternal, Message: "internal error", cause: cause}
}

// AsProtocol extracts a ProtocolError from err, wrapping anything else as
// internal so no raw error text reaches a client.
func AsProtocol(err error) *ProtocolError {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	return Internal(err)
}

// IsAuthRequired reports whether err asks the client to authenticate.
func IsAuthRequired(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Kind == KindAuthRequired
}
