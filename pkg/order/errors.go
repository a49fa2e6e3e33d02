package order

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers (HTTP layer, retry loops) can react
// without string matching.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindNotFound          Kind = "NotFound"
	KindInvalidTransition Kind = "InvalidTransition"
	KindInvalidOrder      Kind = "InvalidOrder"
	KindPriceMismatch     Kind = "PriceMismatch"
	KindStoreUnavailable  Kind = "StoreUnavailable"
	KindTransport         Kind = "TransportError"
)

// Sentinels for errors.Is; any *Error with the same Kind matches.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidOrder      = &Error{Kind: KindInvalidOrder}
	ErrPriceMismatch     = &Error{Kind: KindPriceMismatch}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
	ErrTransport         = &Error{Kind: KindTransport}
)

// Error is the structured failure returned by every order operation.
type Error struct {
	Kind    Kind
	Op      string
	OrderID string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.OrderID != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.OrderID, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, op, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, OrderID: id, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a store failure as StoreUnavailable.
func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
