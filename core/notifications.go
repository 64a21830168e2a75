package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationKind names a lifecycle or fund-movement notification.
type NotificationKind string

const (
	NotifyNewBid                 NotificationKind = "new_bid"
	NotifyAuctionEnded           NotificationKind = "auction_ended"
	NotifyPartialWithdrawal      NotificationKind = "partial_withdrawal"
	NotifyDepositRefunded        NotificationKind = "deposit_refunded"
	NotifyFeeTransferred         NotificationKind = "fee_transferred"
	NotifyAuctionCancelled       NotificationKind = "auction_cancelled"
	NotifyCancellationWithdrawal NotificationKind = "cancellation_withdrawal"
	NotifyEmergencyWithdrawal    NotificationKind = "emergency_withdrawal"
	NotifyWinningsClaimed        NotificationKind = "winnings_claimed"
	NotifyDepositReceived        NotificationKind = "deposit_received"
)

// Notification is emitted by a successful operation. Notifications of a call
// that fails are discarded together with its state changes.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Account Identity         `json:"account,omitempty"`
	Amount  decimal.Decimal  `json:"amount"`
	Fee     decimal.Decimal  `json:"fee,omitempty"`
	At      time.Time        `json:"at"`
}
