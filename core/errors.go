package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Auction operations wraps exactly one of
// these, so callers can classify a rejection with errors.Is.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrWrongPhase     = errors.New("wrong phase")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrRateLimited    = errors.New("rate limited")
	ErrAlreadySettled = errors.New("already settled")
	ErrOutOfRange     = errors.New("out of range")
	ErrTransferFailed = errors.New("transfer failed")
)

var (
	ErrNotOwner         = fmt.Errorf("%w: caller is not the owner", ErrUnauthorized)
	ErrOwnerCannotBid   = fmt.Errorf("%w: owner cannot bid", ErrUnauthorized)
	ErrInvalidIdentity  = fmt.Errorf("%w: invalid caller identity", ErrUnauthorized)
	ErrAlreadyLeading   = fmt.Errorf("%w: caller is already the highest bidder", ErrUnauthorized)
	ErrWinnerExcluded   = fmt.Errorf("%w: highest bidder cannot be refunded", ErrUnauthorized)
	ErrNotActive        = fmt.Errorf("%w: auction is not active", ErrWrongPhase)
	ErrNotSettleable    = fmt.Errorf("%w: auction has not ended", ErrWrongPhase)
	ErrHasBids          = fmt.Errorf("%w: auction already has bids", ErrWrongPhase)
	ErrNotCancelled     = fmt.Errorf("%w: auction was not cancelled", ErrWrongPhase)
	ErrCancelled        = fmt.Errorf("%w: auction was cancelled", ErrWrongPhase)
	ErrDepositsPending  = fmt.Errorf("%w: deposits are still outstanding", ErrWrongPhase)
	ErrZeroAmount       = fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	ErrFractionalAmount = fmt.Errorf("%w: amount must be a whole number of units", ErrInvalidAmount)
	ErrBidTooLow        = fmt.Errorf("%w: bid does not meet minimum increment", ErrInvalidAmount)
	ErrNoExcess         = fmt.Errorf("%w: no excess deposit", ErrInvalidAmount)
	ErrNoDeposit        = fmt.Errorf("%w: no deposit", ErrInvalidAmount)
	ErrNothingToClaim   = fmt.Errorf("%w: no winning bid", ErrInvalidAmount)
	ErrNothingToSweep   = fmt.Errorf("%w: engine holds no funds", ErrInvalidAmount)
	ErrAlreadyClaimed   = fmt.Errorf("%w: winnings already claimed", ErrAlreadySettled)
)

// Stable wire codes for the error kinds.
const (
	CodeUnauthorized   = "unauthorized"
	CodeWrongPhase     = "wrong_phase"
	CodeInvalidAmount  = "invalid_amount"
	CodeRateLimited    = "rate_limited"
	CodeAlreadySettled = "already_settled"
	CodeOutOfRange     = "out_of_range"
	CodeTransferFailed = "transfer_failed"
	CodeInternal       = "internal"
)

var errorCodes = []struct {
	kind error
	code string
}{
	{ErrUnauthorized, CodeUnauthorized},
	{ErrWrongPhase, CodeWrongPhase},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrRateLimited, CodeRateLimited},
	{ErrAlreadySettled, CodeAlreadySettled},
	{ErrOutOfRange, CodeOutOfRange},
	{ErrTransferFailed, CodeTransferFailed},
}

// ErrorCode maps err to its wire code. Errors that do not wrap a known kind map
// to CodeInternal; a nil error maps to "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return CodeInternal
}

// transferError wraps a collaborator failure so it classifies as ErrTransferFailed
// while keeping the underlying cause.
func transferError(to Identity, err error) error {
	return fmt.Errorf("%w: to %s: %w", ErrTransferFailed, to, err)
}
