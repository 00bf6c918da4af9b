package types

import (
	"errors"
	"fmt"

	"fundledger/internal/tradingday"

	"github.com/shopspring/decimal"
)

// Sentinels matched with errors.Is; the typed errors below unwrap to them.
var (
	ErrInvalidFlow          = errors.New("invalid flow")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrGapTooLarge          = errors.New("reconstruction gap too large")
	ErrExternalData         = errors.New("external data unavailable")
)

// InvalidFlowError rejects malformed input before anything is persisted.
type InvalidFlowError struct {
	Field  string
	Reason string
}

func (e *InvalidFlowError) Error() string {
	if e.Field == "" {
		return "invalid flow: " + e.Reason
	}
	return fmt.Sprintf("invalid flow: %s %s", e.Field, e.Reason)
}

func (e *InvalidFlowError) Unwrap() error { return ErrInvalidFlow }

func invalid(field, reason string) error {
	return &InvalidFlowError{Field: field, Reason: reason}
}

// InsufficientPositionError is returned when a sell would drive a holding negative.
type InsufficientPositionError struct {
	AccountID string
	Symbol    string
	Held      decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient position account=%s symbol=%s held=%s requested=%s",
		e.AccountID, e.Symbol, e.Held.String(), e.Requested.String())
}

func (e *InsufficientPositionError) Unwrap() error { return ErrInsufficientPosition }

// InsufficientCashError is returned when a flow would make cash negative.
type InsufficientCashError struct {
	AccountID string
	Cash      decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash account=%s cash=%s requested=%s",
		e.AccountID, e.Cash.String(), e.Requested.String())
}

func (e *InsufficientCashError) Unwrap() error { return ErrInsufficientCash }

// GapTooLargeError reports a reconstruction start earlier than any known history.
type GapTooLargeError struct {
	Start    tradingday.Date
	Earliest tradingday.Date
}

func (e *GapTooLargeError) Error() string {
	return fmt.Sprintf("cannot reconstruct from %s: history starts at %s", e.Start, e.Earliest)
}

func (e *GapTooLargeError) Unwrap() error { return ErrGapTooLarge }

// ExternalDataUnavailableError wraps a failed price or corporate-action lookup.
type ExternalDataUnavailableError struct {
	Source string
	Symbol string
	Err    error
}

func (e *ExternalDataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable for %s", e.Source, e.Symbol)
	}
	return fmt.Sprintf("%s unavailable for %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *ExternalDataUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalData}
	}
	return []error{ErrExternalData, e.Err}
}

// Unavailable builds an ExternalDataUnavailableError.
func Unavailable(source, symbol string, err error) error {
	return &ExternalDataUnavailableError{Source: source, Symbol: symbol, Err: err}
}
