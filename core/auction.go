package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Auction is a single-item ascending auction that escrows bidder funds.
//
// All state lives in this aggregate. Every mutating operation runs as one
// all-or-nothing unit: it validates, mutates the aggregate, and only then asks
// the Runtime to move value. If any step fails, the aggregate, the runtime's
// value book and the call's notifications are reverted together.
//
// An Auction is not safe for concurrent use.
type Auction struct {
	cfg Config
	rt  Runtime

	endTime        time.Time
	extensionUsed  time.Duration
	phase          Phase
	highestBidder  Identity
	highestBid     decimal.Decimal
	fundsWithdrawn bool
	totalDeposits  decimal.Decimal

	deposits  map[Identity]decimal.Decimal
	standing  map[Identity]decimal.Decimal
	lastBidAt map[Identity]time.Time
	history   *BidHistory

	journal journal
	depth   int
	pending []Notification
	emitted []Notification
}

// New creates an active auction hosted on rt.
func New(cfg Config, rt Runtime) (*Auction, error) {
	if rt == nil {
		return nil, errors.New("runtime is required")
	}
	if cfg.Owner.IsZero() {
		return nil, errors.New("owner identity is required")
	}
	if cfg.EndTime.IsZero() {
		return nil, errors.New("end time is required")
	}
	if cfg.ExtensionBudget < 0 {
		return nil, fmt.Errorf("invalid negative extension budget %s", cfg.ExtensionBudget)
	}
	cfg = cfg.withDefaults()
	if cfg.ExtensionWindow < 0 || cfg.MinBidInterval < 0 {
		return nil, errors.New("extension window and bid interval must not be negative")
	}
	if cfg.IncrementPercent < 0 || cfg.RefundFeePercent < 0 || cfg.RefundFeePercent > 100 {
		return nil, fmt.Errorf("invalid percentages: increment %d, refund fee %d", cfg.IncrementPercent, cfg.RefundFeePercent)
	}

	return &Auction{
		cfg:       cfg,
		rt:        rt,
		endTime:   cfg.EndTime,
		phase:     PhaseActive,
		deposits:  make(map[Identity]decimal.Decimal),
		standing:  make(map[Identity]decimal.Decimal),
		lastBidAt: make(map[Identity]time.Time),
		history:   NewBidHistory(),
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (a *Auction) Config() Config {
	return a.cfg
}

// IsActive reports whether bids are accepted: the deadline has not passed and
// the auction was neither ended nor cancelled.
func (a *Auction) IsActive() bool {
	return a.phase == PhaseActive && a.rt.Now().Before(a.endTime)
}

// IsSettleable reports whether claim and refund operations are allowed.
func (a *Auction) IsSettleable() bool {
	return a.phase != PhaseActive || !a.rt.Now().Before(a.endTime)
}

// EndEarly ends an active auction before its deadline.
func (a *Auction) EndEarly(caller Identity) error {
	return a.atomic(func() error {
		if err := a.requireOwner(caller); err != nil {
			return err
		}
		if err := a.requireActive(); err != nil {
			return err
		}
		setField(&a.journal, &a.phase, PhaseEnded)
		a.emit(NotifyAuctionEnded, a.highestBidder, a.highestBid, decimal.Zero)
		return nil
	})
}

// Cancel cancels an active auction that has never accepted a bid. Once money
// has been committed by a bidder the only exit is the normal settlement path.
func (a *Auction) Cancel(caller Identity) error {
	return a.atomic(func() error {
		if err := a.requireOwner(caller); err != nil {
			return err
		}
		if err := a.requireActive(); err != nil {
			return err
		}
		if !a.highestBid.IsZero() {
			return ErrHasBids
		}
		setField(&a.journal, &a.phase, PhaseCancelled)
		a.emit(NotifyAuctionCancelled, a.cfg.Owner, decimal.Zero, decimal.Zero)
		return nil
	})
}

// Phase returns the effective phase: an Active auction past its deadline
// reports PhaseEnded.
func (a *Auction) Phase() Phase {
	if a.phase == PhaseActive && !a.IsActive() {
		return PhaseEnded
	}
	return a.phase
}

// BidCount returns the number of distinct bidders.
func (a *Auction) BidCount() int {
	return a.history.Len()
}

// BidHistoryPage returns a page of the bid history in first-bid order.
func (a *Auction) BidHistoryPage(offset, limit int) ([]BidRecord, error) {
	return a.history.Page(offset, limit)
}

// BidHistory returns the full bid history.
func (a *Auction) BidHistory() []BidRecord {
	return a.history.Records()
}

// Winner returns the current leader and their recorded bid. The record stays
// queryable after the owner claims the winning amount.
func (a *Auction) Winner() (Identity, decimal.Decimal) {
	if a.highestBidder.IsZero() {
		return "", decimal.Zero
	}
	rec, _ := a.history.Get(a.highestBidder)
	return a.highestBidder, rec.Amount
}

// DepositOf returns the escrowed amount held for id.
func (a *Auction) DepositOf(id Identity) decimal.Decimal {
	return a.deposits[id]
}

// StandingBidOf returns id's current cumulative bid.
func (a *Auction) StandingBidOf(id Identity) decimal.Decimal {
	return a.standing[id]
}

// MinimumNextBid returns the smallest standing bid that would currently win.
func (a *Auction) MinimumNextBid() decimal.Decimal {
	return MinimumNextBid(a.highestBid, a.cfg.IncrementPercent)
}

// Status returns a snapshot of the auction.
func (a *Auction) Status() Status {
	return Status{
		ID:              a.cfg.ID,
		Owner:           a.cfg.Owner,
		Phase:           a.Phase(),
		Active:          a.IsActive(),
		Settleable:      a.IsSettleable(),
		EndTime:         a.endTime,
		ExtensionBudget: a.cfg.ExtensionBudget,
		ExtensionUsed:   a.extensionUsed,
		HighestBidder:   a.highestBidder,
		HighestBid:      a.highestBid,
		MinimumNextBid:  a.MinimumNextBid(),
		FundsWithdrawn:  a.fundsWithdrawn,
		BidCount:        a.history.Len(),
		TotalDeposits:   a.totalDeposits,
	}
}

// Notifications returns and clears the notifications of committed calls.
func (a *Auction) Notifications() []Notification {
	out := a.emitted
	a.emitted = nil
	return out
}

func (a *Auction) requireOwner(caller Identity) error {
	if caller != a.cfg.Owner {
		return ErrNotOwner
	}
	return nil
}

func (a *Auction) requireActive() error {
	if !a.IsActive() {
		return ErrNotActive
	}
	return nil
}

func (a *Auction) requireSettleable() error {
	if !a.IsSettleable() {
		return ErrNotSettleable
	}
	return nil
}

// atomic runs fn as one unit. Nested calls get their own checkpoint, so an
// inner failure reverts only the inner unit.
func (a *Auction) atomic(fn func() error) error {
	revision := a.journal.revision()
	checkpoint := a.rt.NewCheckpoint()

	a.depth++
	err := func() error {
		defer func() { a.depth-- }()
		return fn()
	}()
	if err != nil {
		a.journal.revertTo(revision)
		a.rt.RevertTo(checkpoint)
		return err
	}

	a.rt.Commit(checkpoint)
	if a.depth == 0 {
		a.emitted = append(a.emitted, a.pending...)
		a.pending = nil
		a.journal.reset()
	}
	return nil
}

// transfer moves value out of escrow; it must be the last step of a unit's
// bookkeeping for the recipient.
func (a *Auction) transfer(to Identity, amount decimal.Decimal) error {
	if err := a.rt.Transfer(to, amount); err != nil {
		return transferError(to, err)
	}
	return nil
}

func (a *Auction) emit(kind NotificationKind, account Identity, amount, fee decimal.Decimal) {
	n := len(a.pending)
	a.journal.record(func() { a.pending = a.pending[:n] })
	a.pending = append(a.pending, Notification{
		Kind:    kind,
		Account: account,
		Amount:  amount,
		Fee:     fee,
		At:      a.rt.Now(),
	})
}

func (a *Auction) setDeposit(id Identity, amount decimal.Decimal) {
	delta := amount.Sub(a.deposits[id])
	setEntry(&a.journal, a.deposits, id, amount)
	setField(&a.journal, &a.totalDeposits, a.totalDeposits.Add(delta))
}

func (a *Auction) setStanding(id Identity, amount decimal.Decimal) {
	setEntry(&a.journal, a.standing, id, amount)
}

func (a *Auction) upsertHistory(bidder Identity, amount decimal.Decimal) {
	n := a.history.Len()
	prev, existed := a.history.Get(bidder)
	a.history.Upsert(bidder, amount)
	a.journal.record(func() {
		if existed {
			a.history.Upsert(bidder, prev.Amount)
			return
		}
		a.history.truncate(n)
	})
}

func setField[T any](j *journal, p *T, v T) {
	prev := *p
	j.record(func() { *p = prev })
	*p = v
}

func setEntry[K comparable, V any](j *journal, m map[K]V, k K, v V) {
	prev, had := m[k]
	j.record(func() {
		if had {
			m[k] = prev
			return
		}
		delete(m, k)
	})
	m[k] = v
}
