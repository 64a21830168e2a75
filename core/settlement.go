package core

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ClaimWinnings pays the winning bid to the owner. It succeeds at most once.
func (a *Auction) ClaimWinnings(caller Identity) error {
	return a.atomic(func() error {
		if err := a.requireOwner(caller); err != nil {
			return err
		}
		if err := a.requireSettleable(); err != nil {
			return err
		}
		if a.fundsWithdrawn {
			return ErrAlreadyClaimed
		}
		if a.highestBid.IsZero() {
			return ErrNothingToClaim
		}

		amount := a.highestBid
		winner := a.highestBidder
		setField(&a.journal, &a.fundsWithdrawn, true)
		setField(&a.journal, &a.highestBid, decimal.Zero)
		a.setDeposit(winner, a.deposits[winner].Sub(amount))
		a.setStanding(winner, a.standing[winner].Sub(amount))

		if err := a.transfer(a.cfg.Owner, amount); err != nil {
			return err
		}
		a.emit(NotifyWinningsClaimed, a.cfg.Owner, amount, decimal.Zero)
		return nil
	})
}

// Refund returns caller's deposit after a normal end, minus the refund fee
// which goes to the owner. The highest bidder is excluded until the owner has
// claimed the winning amount; after that only their residual escrow is
// returned, fee-free.
func (a *Auction) Refund(caller Identity) error {
	return a.atomic(func() error {
		if caller.IsZero() {
			return ErrInvalidIdentity
		}
		if err := a.requireSettleable(); err != nil {
			return err
		}
		if a.phase == PhaseCancelled {
			return ErrCancelled
		}
		return a.refund(caller)
	})
}

// RefundBatch refunds every eligible bidder in one page of the bid history.
// Each bidder is refunded in its own unit: a recipient whose transfer fails is
// reported in Failed and keeps their deposit, and the batch carries on.
func (a *Auction) RefundBatch(caller Identity, offset, limit int) (*BatchRefundResult, error) {
	var result *BatchRefundResult
	err := a.atomic(func() error {
		if err := a.requireOwner(caller); err != nil {
			return err
		}
		if err := a.requireSettleable(); err != nil {
			return err
		}
		if a.phase == PhaseCancelled {
			return ErrCancelled
		}
		page, err := a.history.Page(offset, limit)
		if err != nil {
			return err
		}

		res := &BatchRefundResult{
			Refunded: []Identity{},
			Failed:   []Identity{},
			Skipped:  []Identity{},
		}
		for _, rec := range page {
			if !a.refundable(rec.Bidder) {
				res.Skipped = append(res.Skipped, rec.Bidder)
				continue
			}
			err := a.atomic(func() error { return a.refund(rec.Bidder) })
			switch {
			case err == nil:
				res.Refunded = append(res.Refunded, rec.Bidder)
			case errors.Is(err, ErrTransferFailed):
				res.Failed = append(res.Failed, rec.Bidder)
			default:
				return err
			}
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancellationWithdraw returns caller's full deposit after a cancellation.
func (a *Auction) CancellationWithdraw(caller Identity) error {
	return a.atomic(func() error {
		if caller.IsZero() {
			return ErrInvalidIdentity
		}
		if err := a.requireSettleable(); err != nil {
			return err
		}
		if a.phase != PhaseCancelled {
			return ErrNotCancelled
		}
		amount := a.deposits[caller]
		if !amount.IsPositive() {
			return ErrNoDeposit
		}

		a.setDeposit(caller, decimal.Zero)
		a.setStanding(caller, decimal.Zero)
		if err := a.transfer(caller, amount); err != nil {
			return err
		}
		a.emit(NotifyCancellationWithdrawal, caller, amount, decimal.Zero)
		return nil
	})
}

// EmergencySweep moves everything the engine still holds to the owner. It is
// refused while any deposit is outstanding, so it can only reclaim residue
// that no bidder is entitled to.
func (a *Auction) EmergencySweep(caller Identity) error {
	return a.atomic(func() error {
		if err := a.requireOwner(caller); err != nil {
			return err
		}
		if err := a.requireSettleable(); err != nil {
			return err
		}
		if a.totalDeposits.IsPositive() {
			return ErrDepositsPending
		}
		balance := a.rt.Balance()
		if !balance.IsPositive() {
			return ErrNothingToSweep
		}
		if err := a.transfer(a.cfg.Owner, balance); err != nil {
			return err
		}
		a.emit(NotifyEmergencyWithdrawal, a.cfg.Owner, balance, decimal.Zero)
		return nil
	})
}

func (a *Auction) refundable(id Identity) bool {
	if id == a.highestBidder && !a.fundsWithdrawn {
		return false
	}
	return a.deposits[id].IsPositive()
}

// refund is the shared body of Refund and RefundBatch. Callers have checked
// the phase.
func (a *Auction) refund(caller Identity) error {
	if caller == a.highestBidder && !a.fundsWithdrawn {
		return ErrWinnerExcluded
	}
	amount := a.deposits[caller]
	if !amount.IsPositive() {
		return ErrNoDeposit
	}

	a.setDeposit(caller, decimal.Zero)
	a.setStanding(caller, decimal.Zero)

	// The winner's residual and deposits that never backed a bid come back
	// without the fee.
	if _, bidder := a.history.Get(caller); caller == a.highestBidder || !bidder {
		if err := a.transfer(caller, amount); err != nil {
			return err
		}
		a.emit(NotifyDepositRefunded, caller, amount, decimal.Zero)
		return nil
	}

	payout, fee := SplitRefund(amount, a.cfg.RefundFeePercent)
	if err := a.transfer(caller, payout); err != nil {
		return err
	}
	if err := a.transfer(a.cfg.Owner, fee); err != nil {
		return err
	}
	a.emit(NotifyDepositRefunded, caller, payout, fee)
	a.emit(NotifyFeeTransferred, a.cfg.Owner, fee, decimal.Zero)
	return nil
}
