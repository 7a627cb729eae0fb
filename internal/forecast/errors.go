package forecast

import (
	"context"
	"errors"
)

var (
	// ErrInvalidRequest marks a request rejected before any data access.
	ErrInvalidRequest = errors.New("invalid forecast request")
	// ErrLedgerUnavailable marks a failed read of a primary ledger source.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
