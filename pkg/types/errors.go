package types

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInsufficientGasPool    = errors.New("insufficient gas pool")
	ErrInvalidNonce           = errors.New("invalid nonce")
	ErrMalformedRequest       = errors.New("malformed request")
	ErrExpiredTransaction     = errors.New("expired transaction")
	ErrContractPaused         = errors.New("contract paused")
	ErrNotWhitelisted         = errors.New("not whitelisted")
	ErrInvalidFTTransfer      = errors.New("invalid ft transfer")
	ErrInsufficientDeposit    = errors.New("insufficient deposit")
	ErrInvalidAccountID       = errors.New("invalid account id")
	ErrAmountTooLow           = errors.New("amount too low")
	ErrFeeTooLow              = errors.New("fee too low")
	ErrInsufficientSignatures = errors.New("insufficient signatures")
)

// RelayError attaches request context to one of the sentinel kinds above.
type RelayError struct {
	Kind   error
	Sender AccountID
	Nonce  uint64
	Detail string
}

func (e *RelayError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (sender=%s nonce=%d)", e.Kind, e.Sender, e.Nonce)
	}
	return fmt.Sprintf("%s: %s (sender=%s nonce=%d)", e.Kind, e.Detail, e.Sender, e.Nonce)
}

func (e *RelayError) Unwrap() error {
	return e.Kind
}

func NewRelayError(kind error, sda *SignedDelegateAction, format string, args ...any) *RelayError {
	e := &RelayError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
	if sda != nil {
		e.Sender = sda.Sender()
		e.Nonce = sda.Nonce()
	}
	return e
}
