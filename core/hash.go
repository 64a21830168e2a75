package core

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ComputeBidRecordHash computes the hash of one bid history slot.
// This is used by both the enclave (to attest receipts) and validation (to let
// a bidder find their own slot in a receipt).
//
// Formula: SHA256(bidder + "|" + amount + "|" + nonce)
//
// The amount is the canonical decimal string of a whole number of units.
func ComputeBidRecordHash(bidder Identity, amount decimal.Decimal, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s", bidder, amount.String(), nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeHistoryHash computes a hash over the whole bid history in slot order.
//
// Formula: SHA256(nonce + "|bidder1:amount1|bidder2:amount2|...")
//
// Slot order is first-bid order, so two histories with the same final amounts
// but different arrival order hash differently.
func ComputeHistoryHash(records []BidRecord, nonce string) string {
	var b strings.Builder
	b.WriteString(nonce)
	for _, rec := range records {
		fmt.Fprintf(&b, "|%s:%s", rec.Bidder, rec.Amount.String())
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}

// ComputeConfigHash computes the hash of an auction configuration, defaults
// applied, so that bidders can check the terms they are bidding under.
//
// Formula: SHA256(id|owner|end_unix|budget_s|window_s|interval_s|increment|fee|nonce)
func ComputeConfigHash(cfg Config, nonce string) string {
	cfg = cfg.withDefaults()
	data := fmt.Sprintf("%s|%s|%d|%d|%d|%d|%d|%d|%s",
		cfg.ID,
		cfg.Owner,
		cfg.EndTime.Unix(),
		int64(cfg.ExtensionBudget.Seconds()),
		int64(cfg.ExtensionWindow.Seconds()),
		int64(cfg.MinBidInterval.Seconds()),
		cfg.IncrementPercent,
		cfg.RefundFeePercent,
		nonce,
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
