package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Runtime is the hosting ledger an Auction runs on. It supplies the clock, moves
// value out of the engine's escrow account and lets the engine group several
// value movements into one all-or-nothing unit.
//
// Implementations need not be safe for concurrent use; callers serialize all
// access to an Auction and its Runtime.
type Runtime interface {
	// Now returns the current time. It must never go backwards.
	Now() time.Time

	// Transfer moves amount from the engine's escrow account to the recipient.
	// A non-nil error means no value moved.
	Transfer(to Identity, amount decimal.Decimal) error

	// Balance returns the value currently held by the engine.
	Balance() decimal.Decimal

	// NewCheckpoint records the current value book and returns a revision that
	// RevertTo can roll back to.
	NewCheckpoint() int

	// RevertTo undoes every value movement since the given revision.
	RevertTo(revision int)

	// Commit releases revision and every later checkpoint, keeping the value
	// movements made since.
	Commit(revision int)
}
