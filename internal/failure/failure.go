// Package failure holds the error taxonomy shared by the chain, venue, order
// and scheduler packages.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	Timeout            Kind = "TIMEOUT_ERROR"
	InsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	NonceConflict      Kind = "NONCE_CONFLICT"
	TokenNotFound      Kind = "TOKEN_NOT_FOUND"
	TransactionFailed  Kind = "TRANSACTION_FAILED"
	InvalidAmount      Kind = "INVALID_AMOUNT"
	InvalidKeyMaterial Kind = "INVALID_KEY_MATERIAL"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err carries no classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var insufficientFundsMarkers = []string{
	"insufficient funds for gas * price + value",
	"insufficient funds",
	"insufficient balance",
}

var nonceConflictMarkers = []string{
	"nonce",
	"replacement transaction underpriced",
	"already known",
	"transaction with same hash was already imported",
	"known transaction",
}

// Classify maps a raw node/transport error onto the retry taxonomy by
// message content. Timeouts keep their kind. Markers are matched against the
// innermost cause only, so wrapping context such as "confirmed nonce for ..."
// never turns a transport failure into a nonce conflict.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if KindOf(err) == Timeout {
		return Timeout
	}
	msg := strings.ToLower(rootCause(err).Error())
	for _, m := range insufficientFundsMarkers {
		if strings.Contains(msg, m) {
			return InsufficientFunds
		}
	}
	for _, m := range nonceConflictMarkers {
		if strings.Contains(msg, m) {
			return NonceConflict
		}
	}
	if k := KindOf(err); k != "" {
		return k
	}
	return TransactionFailed
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
