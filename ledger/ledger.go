// Package ledger is an in-memory value book that hosts a single auction: it
// holds account balances, moves value out of the escrow account and supports
// nested checkpoints so that a failed call can be undone as a whole.
package ledger

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRecipientRefused  = errors.New("recipient refused transfer")
	ErrInvalidValue      = errors.New("value must be a non-negative whole number of units")
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
)

// Account is one balance entry of the book.
type Account struct {
	ID      core.Identity   `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Ledger implements core.Runtime. It is not safe for concurrent use; Host
// serializes access to it.
type Ledger struct {
	clock       Clock
	escrow      core.Identity
	balances    map[core.Identity]decimal.Decimal
	refusing    map[core.Identity]bool
	checkpoints []map[core.Identity]decimal.Decimal
}

var _ core.Runtime = (*Ledger)(nil)

// New returns an empty book whose escrow account is escrow.
func New(escrow core.Identity, clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{
		clock:    clock,
		escrow:   escrow,
		balances: make(map[core.Identity]decimal.Decimal),
		refusing: make(map[core.Identity]bool),
	}
}

// EscrowAccount returns the identity of the account the engine holds funds in.
func (l *Ledger) EscrowAccount() core.Identity {
	return l.escrow
}

// Credit mints amount into id. It is used for genesis balances.
func (l *Ledger) Credit(id core.Identity, amount decimal.Decimal) error {
	if err := checkValue(amount); err != nil {
		return err
	}
	if id.IsZero() {
		return errors.New("cannot credit the null identity")
	}
	l.balances[id] = l.balances[id].Add(amount)
	return nil
}

// BalanceOf returns id's balance.
func (l *Ledger) BalanceOf(id core.Identity) decimal.Decimal {
	return l.balances[id]
}

// Accounts returns every non-zero balance, sorted by identity.
func (l *Ledger) Accounts() []Account {
	accounts := make([]Account, 0, len(l.balances))
	for id, bal := range l.balances {
		if bal.IsZero() {
			continue
		}
		accounts = append(accounts, Account{ID: id, Balance: bal})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

// SetRefusing makes id reject (or accept again) incoming transfers. It models
// a recipient that fails on receipt.
func (l *Ledger) SetRefusing(id core.Identity, refuse bool) {
	if refuse {
		l.refusing[id] = true
		return
	}
	delete(l.refusing, id)
}

// Pay moves amount from one account to another. A zero amount is a no-op.
func (l *Ledger) Pay(from, to core.Identity, amount decimal.Decimal) error {
	if err := checkValue(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	if l.refusing[to] {
		return fmt.Errorf("%w: %s", ErrRecipientRefused, to)
	}
	if l.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from, l.balances[from], amount)
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// Transfer pays amount out of the escrow account.
func (l *Ledger) Transfer(to core.Identity, amount decimal.Decimal) error {
	return l.Pay(l.escrow, to, amount)
}

// Balance returns the escrow account balance.
func (l *Ledger) Balance() decimal.Decimal {
	return l.balances[l.escrow]
}

// NewCheckpoint snapshots every balance and returns the revision to revert to.
func (l *Ledger) NewCheckpoint() int {
	l.checkpoints = append(l.checkpoints, maps.Clone(l.balances))
	return len(l.checkpoints) - 1
}

// RevertTo restores the balances captured by revision and drops it along with
// every later checkpoint.
func (l *Ledger) RevertTo(revision int) {
	if revision < 0 || revision >= len(l.checkpoints) {
		panic(fmt.Sprintf("%v: revision %d of %d", ErrUnknownCheckpoint, revision, len(l.checkpoints)))
	}
	l.balances = l.checkpoints[revision]
	l.checkpoints = l.checkpoints[:revision]
}

// Commit drops revision and every later checkpoint, keeping current balances.
func (l *Ledger) Commit(revision int) {
	if revision >= 0 && revision < len(l.checkpoints) {
		l.checkpoints = l.checkpoints[:revision]
	}
}

func checkValue(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidValue, amount)
	}
	return nil
}
