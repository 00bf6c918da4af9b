package pipeline

import (
	"context"
	"time"

	"fundledger/internal/tradingday"
	"fundledger/internal/types"
)

// Stage is one daily phase, applied to every account.
type Stage interface {
	Meta() StageMeta
	Handle(ctx context.Context, day tradingday.Date, acc types.Account) error
}

// StageMeta carries what the scheduler needs to know about a stage.
type StageMeta struct {
	Name  string
	Order int
	// Critical stages stay unmarked when every visited account failed. A failure
	// limited to some accounts is recorded as a warning and those accounts catch up on
	// the next run, since the cursor and lookback window still cover the day.
	Critical bool
	// Timeout bounds a single account's Handle call.
	Timeout time.Duration
}

// StageError is one account's failure within a stage.
type StageError struct {
	Stage     string
	AccountID string
	Critical  bool
	Err       error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Stage + "/" + e.AccountID
	}
	return e.Stage + "/" + e.AccountID + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
