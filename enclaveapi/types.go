package enclaveapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
)

// Request types understood by the enclave server.
const (
	TypePing                 = "ping"
	TypeAuctionInfo          = "auction_info"
	TypeStatus               = "status"
	TypePlaceBid             = "place_bid"
	TypeDeposit              = "deposit"
	TypeWithdrawExcess       = "withdraw_excess"
	TypeEndEarly             = "end_early"
	TypeCancel               = "cancel"
	TypeClaimWinnings        = "claim_winnings"
	TypeRefund               = "refund"
	TypeRefundBatch          = "refund_batch"
	TypeCancellationWithdraw = "cancellation_withdraw"
	TypeEmergencySweep       = "emergency_sweep"
	TypeBidCount             = "bid_count"
	TypeBidHistory           = "bid_history"
	TypeWinner               = "winner"
	TypeBalance              = "balance"
	TypeEvents               = "events"
	TypeReceipt              = "receipt"
)

// Mutating reports whether requests of type typ change auction state and
// therefore need a single-use request id and a caller.
func Mutating(typ string) bool {
	switch typ {
	case TypePlaceBid, TypeDeposit, TypeWithdrawExcess, TypeEndEarly, TypeCancel,
		TypeClaimWinnings, TypeRefund, TypeRefundBatch, TypeCancellationWithdraw, TypeEmergencySweep:
		return true
	}
	return false
}

// ResponseType returns the response type for a request type.
func ResponseType(typ string) string {
	if typ == TypePing {
		return "pong"
	}
	return typ + "_response"
}

// EnclaveRequest is the single request envelope of the enclave protocol.
// Which fields are used depends on Type.
type EnclaveRequest struct {
	Type      string           `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	Caller    core.Identity    `json:"caller,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Account   core.Identity    `json:"account,omitempty"`
	Offset    int              `json:"offset,omitempty"`
	Limit     int              `json:"limit,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EnclaveResponse is the single response envelope of the enclave protocol.
type EnclaveResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`

	Status        *core.Status            `json:"status,omitempty"`
	Notifications []core.Notification     `json:"notifications,omitempty"`
	BidCount      *int                    `json:"bid_count,omitempty"`
	Bids          []core.BidRecord        `json:"bids,omitempty"`
	Winner        *WinnerInfo             `json:"winner,omitempty"`
	Balance       *AccountBalance         `json:"balance,omitempty"`
	Refunds       *core.BatchRefundResult `json:"refunds,omitempty"`
	Events        []Event                 `json:"events,omitempty"`
	AuctionInfo   *AuctionInfo            `json:"auction_info,omitempty"`
	Receipt       *Receipt                `json:"receipt,omitempty"`

	ProcessingTime int64 `json:"processing_time_ms"`
}

// WinnerInfo is the current leader, or the winner once the auction is over.
type WinnerInfo struct {
	Bidder core.Identity   `json:"bidder,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// AccountBalance describes one identity's position.
type AccountBalance struct {
	Account     core.Identity   `json:"account"`
	Available   decimal.Decimal `json:"available"`
	Deposit     decimal.Decimal `json:"deposit"`
	StandingBid decimal.Decimal `json:"standing_bid"`
	Excess      decimal.Decimal `json:"excess"`
}

// Event is a journaled notification.
type Event struct {
	Seq       int64             `json:"seq"`
	RequestID string            `json:"request_id,omitempty"`
	Caller    core.Identity     `json:"caller,omitempty"`
	Note      core.Notification `json:"notification"`
}

// AuctionInfo is the answer to auction_info: the auction terms, the config
// hash and an attestation binding them to the enclave.
type AuctionInfo struct {
	Config                core.Config           `json:"config"`
	ConfigHash            string                `json:"config_hash"`
	ConfigNonce           string                `json:"config_nonce"`
	EscrowAccount         core.Identity         `json:"escrow_account"`
	RequestToken          string                `json:"request_token"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

// Receipt is an attested settlement receipt.
type Receipt struct {
	UserData              *ReceiptUserData      `json:"user_data"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64"`
	AttestationCOSEGzip   AttestationCOSEGzip   `json:"attestation_cose_gzip,omitempty"`
}
