package core

import (
	"errors"
	"maps"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

const (
	owner   Identity = "owner"
	bidderA Identity = "bidder_a"
	bidderB Identity = "bidder_b"
	bidderC Identity = "bidder_c"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errRefused = errors.New("recipient refused funds")

type valueBook struct {
	escrow decimal.Decimal
	paid   map[Identity]decimal.Decimal
}

// fakeRuntime is a minimal Runtime: an escrow balance, a record of payouts and
// a stack of snapshots for checkpoints.
type fakeRuntime struct {
	now       time.Time
	book      valueBook
	refuse    map[Identity]bool
	snapshots []valueBook
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		now:    t0,
		book:   valueBook{paid: make(map[Identity]decimal.Decimal)},
		refuse: make(map[Identity]bool),
	}
}

func (r *fakeRuntime) Now() time.Time { return r.now }

func (r *fakeRuntime) Transfer(to Identity, amount decimal.Decimal) error {
	if r.refuse[to] {
		return errRefused
	}
	if amount.GreaterThan(r.book.escrow) {
		return errors.New("insufficient escrow balance")
	}
	r.book.escrow = r.book.escrow.Sub(amount)
	r.book.paid[to] = r.book.paid[to].Add(amount)
	return nil
}

func (r *fakeRuntime) Balance() decimal.Decimal { return r.book.escrow }

func (r *fakeRuntime) NewCheckpoint() int {
	r.snapshots = append(r.snapshots, valueBook{escrow: r.book.escrow, paid: maps.Clone(r.book.paid)})
	return len(r.snapshots) - 1
}

func (r *fakeRuntime) RevertTo(revision int) {
	r.book = r.snapshots[revision]
	r.snapshots = r.snapshots[:revision]
}

func (r *fakeRuntime) Commit(revision int) {
	r.snapshots = r.snapshots[:revision]
}

func (r *fakeRuntime) advance(d time.Duration) { r.now = r.now.Add(d) }

func (r *fakeRuntime) paidTo(id Identity) decimal.Decimal { return r.book.paid[id] }

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func defaultConfig() Config {
	return Config{
		ID:              "test-auction",
		Owner:           owner,
		EndTime:         t0.Add(time.Hour),
		ExtensionBudget: 30 * time.Minute,
	}
}

func newTestAuction(t *testing.T) (*Auction, *fakeRuntime) {
	t.Helper()
	rt := newFakeRuntime()
	a, err := New(defaultConfig(), rt)
	assert.NoError(t, err)
	return a, rt
}

// bid simulates the runtime receiving the attached value before the call and
// returning it when the call is rejected.
func bid(a *Auction, rt *fakeRuntime, caller Identity, value int64) error {
	rt.book.escrow = rt.book.escrow.Add(amt(value))
	err := a.PlaceBid(caller, amt(value))
	if err != nil {
		rt.book.escrow = rt.book.escrow.Sub(amt(value))
	}
	return err
}

func deposit(a *Auction, rt *fakeRuntime, caller Identity, value int64) error {
	rt.book.escrow = rt.book.escrow.Add(amt(value))
	err := a.Deposit(caller, amt(value))
	if err != nil {
		rt.book.escrow = rt.book.escrow.Sub(amt(value))
	}
	return err
}

// checkInvariants asserts the escrow invariants that must hold after every
// operation.
func checkInvariants(t *testing.T, a *Auction) {
	t.Helper()
	total := decimal.Zero
	for id, dep := range a.deposits {
		assert.True(t, dep.GreaterThanOrEqual(a.standing[id]))
		assert.True(t, !dep.IsNegative())
		total = total.Add(dep)
	}
	assert.True(t, total.Equal(a.totalDeposits))
	assert.True(t, a.extensionUsed <= a.cfg.ExtensionBudget)
	assert.True(t, a.rt.Balance().GreaterThanOrEqual(a.totalDeposits))
	assert.Equal(t, a.history.Len(), len(a.history.index))
}
