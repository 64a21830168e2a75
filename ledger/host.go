package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
)

// Call describes one external call into the auction: who made it and how much
// value it carries.
type Call struct {
	Caller core.Identity
	Value  decimal.Decimal
}

// Host runs an auction on a Ledger and gives calls a total order. Attached
// value is moved from the caller into escrow before the auction sees the call,
// and the whole call, value included, is reverted if the auction rejects it.
type Host struct {
	mu      sync.Mutex
	ledger  *Ledger
	auction *core.Auction
}

// NewHost creates the auction described by cfg on l.
func NewHost(cfg core.Config, l *Ledger) (*Host, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.Owner == l.escrow {
		return nil, errors.New("owner cannot be the escrow account")
	}
	a, err := core.New(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	return &Host{ledger: l, auction: a}, nil
}

// Invoke runs fn as one atomic call and returns the notifications it emitted.
func (h *Host) Invoke(call Call, fn func(*core.Auction) error) ([]core.Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if call.Caller.IsZero() {
		return nil, core.ErrInvalidIdentity
	}
	if call.Caller == h.ledger.escrow {
		return nil, fmt.Errorf("%w: escrow account cannot call", core.ErrUnauthorized)
	}

	if err := checkValue(call.Value); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAmount, err)
	}

	rev := h.ledger.NewCheckpoint()
	if call.Value.IsPositive() {
		if err := h.ledger.Pay(call.Caller, h.ledger.escrow, call.Value); err != nil {
			h.ledger.RevertTo(rev)
			return nil, fmt.Errorf("%w: attaching value: %w", core.ErrInvalidAmount, err)
		}
	}
	if err := fn(h.auction); err != nil {
		h.ledger.RevertTo(rev)
		return nil, err
	}
	h.ledger.Commit(rev)
	return h.auction.Notifications(), nil
}

// View runs fn with the auction and ledger under the host lock. fn must not
// mutate either.
func (h *Host) View(fn func(*core.Auction, *Ledger)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.auction, h.ledger)
}

// Credit mints genesis value into id.
func (h *Host) Credit(id core.Identity, amount decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == h.ledger.escrow {
		return errors.New("cannot credit the escrow account directly")
	}
	return h.ledger.Credit(id, amount)
}

// BalanceOf returns id's balance in the book.
func (h *Host) BalanceOf(id core.Identity) decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger.BalanceOf(id)
}

// SetRefusing toggles whether id rejects incoming transfers.
func (h *Host) SetRefusing(id core.Identity, refuse bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ledger.SetRefusing(id, refuse)
}
