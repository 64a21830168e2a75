package core

import (
	"github.com/shopspring/decimal"
)

// WithdrawExcess returns the part of caller's deposit above their standing bid
// while the auction is active.
func (a *Auction) WithdrawExcess(caller Identity) error {
	return a.atomic(func() error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if caller.IsZero() {
			return ErrInvalidIdentity
		}

		deposit := a.deposits[caller]
		standing := a.standing[caller]
		excess := deposit.Sub(standing)
		if deposit.IsZero() || !excess.IsPositive() {
			return ErrNoExcess
		}

		a.setDeposit(caller, standing)
		if err := a.transfer(caller, excess); err != nil {
			return err
		}
		a.emit(NotifyPartialWithdrawal, caller, excess, decimal.Zero)
		return nil
	})
}

// ExcessOf returns the withdrawable part of id's deposit.
func (a *Auction) ExcessOf(id Identity) decimal.Decimal {
	return a.deposits[id].Sub(a.standing[id])
}
