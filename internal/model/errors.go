package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, machine readable discriminator carried by every
// expected failure. Values never change once published.
type ErrorKind string

const (
	KindNotFound                       ErrorKind = "NOT_FOUND"
	KindInvalidInput                   ErrorKind = "INVALID_INPUT"
	KindQrExpired                      ErrorKind = "QR_EXPIRED"
	KindQrInvalid                      ErrorKind = "QR_INVALID"
	KindInsufficientBalance            ErrorKind = "INSUFFICIENT_BALANCE"
	KindOnlyCompletedPaymentRefundable ErrorKind = "ONLY_COMPLETED_PAYMENT_REFUNDABLE"
	KindRefundExceedsRemaining         ErrorKind = "REFUND_EXCEEDS_REMAINING"
	KindNotMerchantUser                ErrorKind = "NOT_MERCHANT_USER"
	KindOnlyEnterpriseAdmin            ErrorKind = "ONLY_ENTERPRISE_ADMIN"
	KindInvalidCardPassword            ErrorKind = "INVALID_CARD_PASSWORD"
	KindCannotRemoveLastAdmin          ErrorKind = "CANNOT_REMOVE_LAST_ADMIN"
	KindIdempotencyConflict            ErrorKind = "IDEMPOTENCY_CONFLICT"
	KindConflict                       ErrorKind = "CONFLICT"
	KindAmbiguousLevelConfig           ErrorKind = "AMBIGUOUS_LEVEL_CONFIG"
	KindCardNotActive                  ErrorKind = "CARD_NOT_ACTIVE"
	KindForbidden                      ErrorKind = "FORBIDDEN"
	KindInternal                       ErrorKind = "INTERNAL"
)

// Error is a kinded failure. Two errors match under errors.Is when their
// kinds are equal, so the sentinels below can be compared against any
// wrapped instance.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

var (
	ErrNotFound                       = &Error{Kind: KindNotFound}
	ErrInvalidInput                   = &Error{Kind: KindInvalidInput}
	ErrQrExpired                      = &Error{Kind: KindQrExpired}
	ErrQrInvalid                      = &Error{Kind: KindQrInvalid}
	ErrInsufficientBalance            = &Error{Kind: KindInsufficientBalance}
	ErrOnlyCompletedPaymentRefundable = &Error{Kind: KindOnlyCompletedPaymentRefundable}
	ErrRefundExceedsRemaining         = &Error{Kind: KindRefundExceedsRemaining}
	ErrNotMerchantUser                = &Error{Kind: KindNotMerchantUser}
	ErrOnlyEnterpriseAdmin            = &Error{Kind: KindOnlyEnterpriseAdmin}
	ErrInvalidCardPassword            = &Error{Kind: KindInvalidCardPassword}
	ErrCannotRemoveLastAdmin          = &Error{Kind: KindCannotRemoveLastAdmin}
	ErrIdempotencyConflict            = &Error{Kind: KindIdempotencyConflict}
	ErrConflict                       = &Error{Kind: KindConflict}
	ErrAmbiguousLevelConfig           = &Error{Kind: KindAmbiguousLevelConfig}
	ErrCardNotActive                  = &Error{Kind: KindCardNotActive}
	ErrForbidden                      = &Error{Kind: KindForbidden}
)

// KindOf reports the kind of err, or KindInternal for anything unkinded.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsExpected reports whether err is a typed business failure that callers
// receive verbatim.
func IsExpected(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindInternal
}
