package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"storefront-api/internal/ledger"
)

// Kind classifies why a fulfillment attempt did not succeed.
type Kind string

const (
	KindInvalidRequest      Kind = "invalid_request"
	KindUserNotFound        Kind = "user_not_found"
	KindProductNotFound     Kind = "product_not_found"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInsufficientBalance Kind = "insufficient_balance"
	// KindStoreUnavailable means nothing was mutated; the attempt may be retried.
	KindStoreUnavailable Kind = "store_unavailable"
	// KindUnknown means a commit started and its outcome is not confirmed.
	KindUnknown  Kind = "unknown"
	KindInternal Kind = "internal"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUserNotFound        = errors.New("user not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrOutcomeUnknown      = errors.New("outcome unknown")
	ErrInternal            = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindInvalidRequest:      ErrInvalidRequest,
	KindUserNotFound:        ErrUserNotFound,
	KindProductNotFound:     ErrProductNotFound,
	KindInsufficientStock:   ErrInsufficientStock,
	KindInsufficientBalance: ErrInsufficientBalance,
	KindStoreUnavailable:    ErrStoreUnavailable,
	KindUnknown:             ErrOutcomeUnknown,
	KindInternal:            ErrInternal,
}

// Error is returned by every Engine operation that does not succeed.
type Error struct {
	Kind Kind
	// ProductID names the offending product for stock and not-found errors.
	ProductID string
	// IdempotencyKey is set on KindUnknown so callers can retry safely.
	IdempotencyKey string
	Message        string
	Err            error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.ProductID != "" {
		msg = fmt.Sprintf("%s: product %s", msg, e.ProductID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the Kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Retryable reports whether err left the store untouched and may be retried.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func unavailable(msg string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: msg, Err: err}
}

func outcomeUnknown(key string, err error) *Error {
	return &Error{Kind: KindUnknown, IdempotencyKey: key, Err: err}
}

// classify maps ledger and context errors onto the engine taxonomy.
func classify(err error) error {
	var fe *Error
	var pnf *ledger.ProductNotFoundError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ledger.ErrUserNotFound):
		return &Error{Kind: KindUserNotFound}
	case errors.As(err, &pnf):
		return &Error{Kind: KindProductNotFound, ProductID: pnf.ProductID}
	case errors.Is(err, ledger.ErrMalformedRow):
		return &Error{Kind: KindInternal, Message: "ledger row is malformed", Err: err}
	case errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return unavailable("store unavailable", err)
	default:
		return &Error{Kind: KindInternal, Err: err}
	}
}
