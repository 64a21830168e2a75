package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlaceBid accepts amount, already received into escrow by the runtime, as a
// top-up of caller's standing bid. The resulting cumulative bid must clear the
// minimum increment over the current highest bid.
//
// A rejected bid changes nothing; returning the attached value is the
// runtime's job.
func (a *Auction) PlaceBid(caller Identity, amount decimal.Decimal) error {
	return a.atomic(func() error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if err := a.requireBidder(caller); err != nil {
			return err
		}
		if err := validateAmount(amount); err != nil {
			return err
		}

		now := a.rt.Now()
		if last, ok := a.lastBidAt[caller]; ok && now.Sub(last) < a.cfg.MinBidInterval {
			return fmt.Errorf("%w: next bid from %s allowed at %s", ErrRateLimited, caller, last.Add(a.cfg.MinBidInterval).Format(time.RFC3339))
		}
		if caller == a.highestBidder {
			return ErrAlreadyLeading
		}

		newStanding := a.standing[caller].Add(amount)
		if !MeetsIncrement(newStanding, a.highestBid, a.cfg.IncrementPercent) {
			return fmt.Errorf("%w: standing bid %s, minimum %s", ErrBidTooLow, newStanding, a.MinimumNextBid())
		}

		a.setDeposit(caller, a.deposits[caller].Add(amount))
		a.setStanding(caller, newStanding)
		setField(&a.journal, &a.highestBidder, caller)
		setField(&a.journal, &a.highestBid, newStanding)
		a.upsertHistory(caller, newStanding)
		setEntry(&a.journal, a.lastBidAt, caller, now)
		a.extendDeadline(now)

		a.emit(NotifyNewBid, caller, newStanding, decimal.Zero)
		return nil
	})
}

// Deposit adds amount to caller's escrow without raising their standing bid.
// The surplus is excess and can be withdrawn while the auction is active.
func (a *Auction) Deposit(caller Identity, amount decimal.Decimal) error {
	return a.atomic(func() error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if err := a.requireBidder(caller); err != nil {
			return err
		}
		if err := validateAmount(amount); err != nil {
			return err
		}
		a.setDeposit(caller, a.deposits[caller].Add(amount))
		a.emit(NotifyDepositReceived, caller, amount, decimal.Zero)
		return nil
	})
}

func (a *Auction) requireBidder(caller Identity) error {
	switch {
	case caller.IsZero():
		return ErrInvalidIdentity
	case caller == a.cfg.Owner:
		return ErrOwnerCannotBid
	}
	return nil
}

// extendDeadline pushes the deadline when a bid lands within one extension
// window of it, never beyond the cumulative budget.
func (a *Auction) extendDeadline(now time.Time) {
	window := a.cfg.ExtensionWindow
	if !now.Add(window).After(a.endTime) {
		return
	}
	remaining := a.cfg.ExtensionBudget - a.extensionUsed
	if remaining <= 0 {
		return
	}
	grant := min(window, remaining)
	setField(&a.journal, &a.extensionUsed, a.extensionUsed+grant)
	setField(&a.journal, &a.endTime, a.endTime.Add(grant))
}
