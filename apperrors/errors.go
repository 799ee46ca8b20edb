package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotAuthorized     Kind = "NOT_AUTHORIZED"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindAlreadyReviewed   Kind = "ALREADY_REVIEWED"
	KindInvalidState      Kind = "INVALID_STATE"
	KindInvalidAmount     Kind = "INVALID_AMOUNT"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindMissingTxHash     Kind = "MISSING_TX_HASH"
	KindNoHotWallet       Kind = "NO_HOT_WALLET"
	KindExternalService   Kind = "EXTERNAL_SERVICE_ERROR"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindInternal          Kind = "INTERNAL"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrNotAuthorized     = &Error{Kind: KindNotAuthorized}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrAlreadyReviewed   = &Error{Kind: KindAlreadyReviewed}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrMissingTxHash     = &Error{Kind: KindMissingTxHash}
	ErrNoHotWallet       = &Error{Kind: KindNoHotWallet}
	ErrExternalService   = &Error{Kind: KindExternalService}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	case e.Op == "":
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Message is the caller-facing reason without the kind prefix.
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return e.Op
	}
	return string(e.Kind)
}

func New(kind Kind, op string, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func Newf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
