package core

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	oneUnit = decimal.NewFromInt(1)
)

// PercentOf returns floor(amount * pct / 100) using exact decimal arithmetic.
func PercentOf(amount decimal.Decimal, pct int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(pct)).Div(hundred).Floor()
}

// MeetsIncrement reports whether a candidate standing bid clears the minimum
// raise over the current highest bid: any positive amount when there is no
// highest bid, otherwise candidate*100 >= highest*(100+pct).
func MeetsIncrement(candidate, highest decimal.Decimal, pct int64) bool {
	if !candidate.IsPositive() {
		return false
	}
	if highest.IsZero() {
		return true
	}
	return candidate.Mul(hundred).GreaterThanOrEqual(highest.Mul(decimal.NewFromInt(100 + pct)))
}

// MinimumNextBid returns the smallest standing bid that MeetsIncrement accepts:
// highest + ceil(highest * pct / 100), or one unit when there is no bid yet.
func MinimumNextBid(highest decimal.Decimal, pct int64) decimal.Decimal {
	if highest.IsZero() {
		return oneUnit
	}
	return highest.Add(highest.Mul(decimal.NewFromInt(pct)).Div(hundred).Ceil())
}

// SplitRefund splits a refunded deposit into the bidder payout and the owner fee.
func SplitRefund(amount decimal.Decimal, feePct int64) (payout, fee decimal.Decimal) {
	fee = PercentOf(amount, feePct)
	return amount.Sub(fee), fee
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrZeroAmount
	}
	if !amount.IsInteger() {
		return ErrFractionalAmount
	}
	return nil
}
