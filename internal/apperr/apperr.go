// Package apperr defines the typed error kinds shared by the pipeline stages,
// the store and the admin API. Stages branch on the kind to decide whether a
// failure is skipped, retried next cycle, or fatal to the invocation.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a failure.
type Kind int

const (
	// KindUnknown is used for errors that carry no kind.
	KindUnknown Kind = iota
	// KindNotFound means an operator referenced a lead that does not exist.
	KindNotFound
	// KindValidation means a candidate value or request field was malformed.
	KindValidation
	// KindConflict means a unique constraint rejected the write.
	KindConflict
	// KindInvalidTransition means a status change is not an edge of the state machine.
	KindInvalidTransition
	// KindStale means the lead's status changed underneath the caller.
	KindStale
	// KindProviderUnavailable covers network, timeout and non-2xx failures from external APIs.
	KindProviderUnavailable
	// KindDelivery means a send or build failed; the lead is left for retry.
	KindDelivery
	// KindInternal is a store or programming failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindStale:
		return "stale"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindDelivery:
		return "delivery"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a kinded error with an optional operation name and cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound reports a missing entity.
func NotFound(op, entity string, id any) *Error {
	return Newf(KindNotFound, op, "%s not found: %v", entity, id)
}

// Validation reports a malformed value.
func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a response status for the admin API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindInvalidTransition, KindStale:
		return http.StatusConflict
	case KindProviderUnavailable, KindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
