package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/journal"
	"github.com/cloudx-io/openescrow/ledger"
)

// Error codes for requests rejected before they reach the auction.
const (
	codeInvalidRequest  = "invalid_request"
	codeReplayedRequest = "replayed_request"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

var errInvalidRequest = errors.New("invalid request")

func (s *EnclaveServer) handleRequest(ctx context.Context, data []byte) *enclaveapi.EnclaveResponse {
	start := time.Now()

	var req enclaveapi.EnclaveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("Failed to parse request", "error", err)
		resp := &enclaveapi.EnclaveResponse{Type: "error"}
		fail(resp, codeInvalidRequest, fmt.Sprintf("failed to parse request: %v", err))
		return resp
	}

	resp := &enclaveapi.EnclaveResponse{Type: enclaveapi.ResponseType(req.Type)}
	switch {
	case enclaveapi.Mutating(req.Type):
		s.handleMutation(ctx, &req, resp)
	default:
		s.handleQuery(ctx, &req, resp)
	}

	resp.ProcessingTime = time.Since(start).Milliseconds()
	return resp
}

func fail(resp *enclaveapi.EnclaveResponse, code, message string) {
	resp.Success = false
	resp.ErrorCode = code
	resp.Message = message
}

// handleMutation admits the request id, records the request and runs the
// operation as one host call. Notifications of a successful call are appended
// to the journal.
func (s *EnclaveServer) handleMutation(ctx context.Context, req *enclaveapi.EnclaveRequest, resp *enclaveapi.EnclaveResponse) {
	value, err := attachedValue(req)
	if err != nil {
		fail(resp, codeInvalidRequest, err.Error())
		return
	}
	if req.Caller.IsZero() {
		fail(resp, codeInvalidRequest, "caller is required")
		return
	}

	if err := s.guard.Admit(req.RequestID, req.Timestamp); err != nil {
		code := codeReplayedRequest
		if errors.Is(err, ErrInvalidRequestID) || errors.Is(err, ErrUnknownToken) {
			code = codeInvalidRequest
		}
		slog.Warn("Request refused by replay guard", "type", req.Type, "request_id", req.RequestID, "error", err)
		fail(resp, code, err.Error())
		return
	}

	err = s.journal.RecordRequest(ctx, journal.RequestRecord{
		RequestID:  req.RequestID,
		Type:       req.Type,
		Caller:     req.Caller,
		Amount:     value,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, journal.ErrDuplicateRequest) {
			fail(resp, codeReplayedRequest, err.Error())
			return
		}
		slog.Error("Failed to record request", "request_id", req.RequestID, "error", err)
		fail(resp, core.CodeInternal, "failed to record request")
		return
	}

	var refunds *core.BatchRefundResult
	notes, err := s.host.Invoke(ledger.Call{Caller: req.Caller, Value: value}, func(a *core.Auction) error {
		switch req.Type {
		case enclaveapi.TypePlaceBid:
			return a.PlaceBid(req.Caller, value)
		case enclaveapi.TypeDeposit:
			return a.Deposit(req.Caller, value)
		case enclaveapi.TypeWithdrawExcess:
			return a.WithdrawExcess(req.Caller)
		case enclaveapi.TypeEndEarly:
			return a.EndEarly(req.Caller)
		case enclaveapi.TypeCancel:
			return a.Cancel(req.Caller)
		case enclaveapi.TypeClaimWinnings:
			return a.ClaimWinnings(req.Caller)
		case enclaveapi.TypeRefund:
			return a.Refund(req.Caller)
		case enclaveapi.TypeRefundBatch:
			res, err := a.RefundBatch(req.Caller, req.Offset, pageLimit(req.Limit))
			refunds = res
			return err
		case enclaveapi.TypeCancellationWithdraw:
			return a.CancellationWithdraw(req.Caller)
		case enclaveapi.TypeEmergencySweep:
			return a.EmergencySweep(req.Caller)
		}
		return fmt.Errorf("unhandled request type %s", req.Type)
	})
	if err != nil {
		code := core.ErrorCode(err)
		if jerr := s.journal.SetRequestOutcome(ctx, req.RequestID, code); jerr != nil {
			slog.Error("Failed to record request outcome", "request_id", req.RequestID, "error", jerr)
		}
		slog.Info("Request rejected", "type", req.Type, "caller", req.Caller, "error_code", code, "error", err)
		fail(resp, code, err.Error())
		return
	}

	if _, err := s.journal.AppendEvents(ctx, req.RequestID, req.Caller, notes); err != nil {
		// The call is already applied; only the journal copy is missing.
		slog.Error("Failed to journal notifications", "request_id", req.RequestID, "count", len(notes), "error", err)
	}

	var status core.Status
	s.host.View(func(a *core.Auction, _ *ledger.Ledger) { status = a.Status() })

	resp.Success = true
	resp.Message = fmt.Sprintf("%s applied", req.Type)
	resp.Notifications = notes
	resp.Refunds = refunds
	resp.Status = &status
	slog.Info("Request applied", "type", req.Type, "caller", req.Caller, "request_id", req.RequestID, "notifications", len(notes))
}

// attachedValue returns the value a request carries. Only place_bid and
// deposit carry value, and they must.
func attachedValue(req *enclaveapi.EnclaveRequest) (decimal.Decimal, error) {
	switch req.Type {
	case enclaveapi.TypePlaceBid, enclaveapi.TypeDeposit:
		if req.Amount == nil {
			return decimal.Zero, fmt.Errorf("%w: %s requires an amount", errInvalidRequest, req.Type)
		}
		return *req.Amount, nil
	}
	if req.Amount != nil && !req.Amount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s does not accept an amount", errInvalidRequest, req.Type)
	}
	return decimal.Zero, nil
}

func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageLimit
	case limit > maxPageLimit:
		return maxPageLimit
	}
	return limit
}

func (s *EnclaveServer) handleQuery(ctx context.Context, req *enclaveapi.EnclaveRequest, resp *enclaveapi.EnclaveResponse) {
	switch req.Type {
	case enclaveapi.TypePing:
		resp.Success = true
		resp.Message = "pong"

	case enclaveapi.TypeStatus:
		var status core.Status
		s.host.View(func(a *core.Auction, _ *ledger.Ledger) { status = a.Status() })
		resp.Success = true
		resp.Status = &status

	case enclaveapi.TypeBidCount:
		var n int
		s.host.View(func(a *core.Auction, _ *ledger.Ledger) { n = a.BidCount() })
		resp.Success = true
		resp.BidCount = &n

	case enclaveapi.TypeBidHistory:
		var (
			bids []core.BidRecord
			err  error
		)
		s.host.View(func(a *core.Auction, _ *ledger.Ledger) {
			bids, err = a.BidHistoryPage(req.Offset, pageLimit(req.Limit))
		})
		if err != nil {
			fail(resp, core.ErrorCode(err), err.Error())
			return
		}
		resp.Success = true
		resp.Bids = bids

	case enclaveapi.TypeWinner:
		info := &enclaveapi.WinnerInfo{}
		s.host.View(func(a *core.Auction, _ *ledger.Ledger) { info.Bidder, info.Amount = a.Winner() })
		resp.Success = true
		resp.Winner = info

	case enclaveapi.TypeBalance:
		account := req.Account
		if account.IsZero() {
			account = req.Caller
		}
		if account.IsZero() {
			fail(resp, codeInvalidRequest, "account is required")
			return
		}
		bal := &enclaveapi.AccountBalance{Account: account}
		s.host.View(func(a *core.Auction, l *ledger.Ledger) {
			bal.Available = l.BalanceOf(account)
			bal.Deposit = a.DepositOf(account)
			bal.StandingBid = a.StandingBidOf(account)
			bal.Excess = a.ExcessOf(account)
		})
		resp.Success = true
		resp.Balance = bal

	case enclaveapi.TypeEvents:
		events, err := s.journal.Events(ctx, req.Account, req.Offset, pageLimit(req.Limit))
		if err != nil {
			slog.Error("Failed to read events", "error", err)
			fail(resp, codeInvalidRequest, err.Error())
			return
		}
		resp.Success = true
		resp.Events = events

	case enclaveapi.TypeAuctionInfo:
		info, err := s.auctionInfo()
		if err != nil {
			fail(resp, core.CodeInternal, err.Error())
			return
		}
		resp.Success = true
		resp.AuctionInfo = info

	case enclaveapi.TypeReceipt:
		receipt, err := s.settlementReceipt()
		if err != nil {
			fail(resp, core.ErrorCode(err), err.Error())
			return
		}
		resp.Success = true
		resp.Receipt = receipt

	default:
		fail(resp, codeInvalidRequest, fmt.Sprintf("unknown request type: %q", req.Type))
	}
}

// auctionInfo returns the auction terms with a fresh request token. Without an
// attester the config hash is still returned, unattested.
func (s *EnclaveServer) auctionInfo() (*enclaveapi.AuctionInfo, error) {
	var cfg core.Config
	s.host.View(func(a *core.Auction, _ *ledger.Ledger) { cfg = a.Config() })

	info := &enclaveapi.AuctionInfo{
		Config:        cfg,
		EscrowAccount: s.escrow,
		RequestToken:  s.guard.IssueToken(),
	}

	if s.attester == nil {
		nonce, err := generateNonce()
		if err != nil {
			return nil, err
		}
		info.ConfigNonce = nonce
		info.ConfigHash = core.ComputeConfigHash(cfg, nonce)
		return info, nil
	}

	coseBytes, userData, err := GenerateConfigAttestation(s.attester, cfg, info.RequestToken)
	if err != nil {
		return nil, err
	}
	info.ConfigHash = userData.ConfigHash
	info.ConfigNonce = userData.ConfigNonce
	info.AttestationCOSEBase64 = coseBytes.EncodeBase64()
	return info, nil
}

// settlementReceipt attests the outcome of a settleable auction.
func (s *EnclaveServer) settlementReceipt() (*enclaveapi.Receipt, error) {
	var (
		snap       outcomeSnapshot
		settleable bool
	)
	s.host.View(func(a *core.Auction, _ *ledger.Ledger) {
		settleable = a.IsSettleable()
		snap = snapshotOutcome(a)
	})
	if !settleable {
		return nil, core.ErrNotSettleable
	}

	coseBytes, userData, err := GenerateSettlementReceipt(s.attester, snap)
	if err != nil {
		return nil, err
	}
	compressed, err := coseBytes.CompressGzip()
	if err != nil {
		return nil, fmt.Errorf("failed to compress receipt: %w", err)
	}
	return &enclaveapi.Receipt{
		UserData:              userData,
		AttestationCOSEBase64: coseBytes.EncodeBase64(),
		AttestationCOSEGzip:   compressed,
	}, nil
}
