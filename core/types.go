package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity is a stable caller identity supplied by the hosting runtime.
// The empty identity is never a valid participant.
type Identity string

// IsZero reports whether id is the null identity.
func (id Identity) IsZero() bool {
	return id == ""
}

func (id Identity) String() string {
	if id == "" {
		return "<none>"
	}
	return string(id)
}

// Phase is the stored lifecycle phase of an auction. An Active auction whose
// deadline has passed is still stored as Active; see Auction.IsActive.
type Phase string

const (
	PhaseActive    Phase = "active"
	PhaseEnded     Phase = "ended"
	PhaseCancelled Phase = "cancelled"
)

const (
	// DefaultExtensionWindow is how far a late bid pushes the deadline.
	DefaultExtensionWindow = 10 * time.Minute
	// DefaultMinBidInterval is the minimum time between two accepted bids from
	// the same caller.
	DefaultMinBidInterval = time.Minute
	// DefaultIncrementPercent is the minimum raise over the current highest bid.
	DefaultIncrementPercent = 5
	// DefaultRefundFeePercent is skimmed from losing deposits and paid to the owner.
	DefaultRefundFeePercent = 2
)

// Config describes a single auction instance.
type Config struct {
	ID              string        `json:"id" yaml:"id"`
	Owner           Identity      `json:"owner" yaml:"owner"`
	EndTime         time.Time     `json:"end_time" yaml:"end_time"`
	ExtensionBudget time.Duration `json:"extension_budget" yaml:"extension_budget"`

	// Optional overrides; zero values select the defaults above.
	ExtensionWindow  time.Duration `json:"extension_window,omitempty" yaml:"extension_window,omitempty"`
	MinBidInterval   time.Duration `json:"min_bid_interval,omitempty" yaml:"min_bid_interval,omitempty"`
	IncrementPercent int64         `json:"increment_percent,omitempty" yaml:"increment_percent,omitempty"`
	RefundFeePercent int64         `json:"refund_fee_percent,omitempty" yaml:"refund_fee_percent,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.ExtensionWindow == 0 {
		c.ExtensionWindow = DefaultExtensionWindow
	}
	if c.MinBidInterval == 0 {
		c.MinBidInterval = DefaultMinBidInterval
	}
	if c.IncrementPercent == 0 {
		c.IncrementPercent = DefaultIncrementPercent
	}
	if c.RefundFeePercent == 0 {
		c.RefundFeePercent = DefaultRefundFeePercent
	}
	return c
}

// BidRecord is one slot of the bid history.
type BidRecord struct {
	Bidder Identity        `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// Status is a point-in-time snapshot of an auction.
type Status struct {
	ID              string          `json:"id"`
	Owner           Identity        `json:"owner"`
	Phase           Phase           `json:"phase"`
	Active          bool            `json:"active"`
	Settleable      bool            `json:"settleable"`
	EndTime         time.Time       `json:"end_time"`
	ExtensionBudget time.Duration   `json:"extension_budget"`
	ExtensionUsed   time.Duration   `json:"extension_used"`
	HighestBidder   Identity        `json:"highest_bidder,omitempty"`
	HighestBid      decimal.Decimal `json:"highest_bid"`
	MinimumNextBid  decimal.Decimal `json:"minimum_next_bid"`
	FundsWithdrawn  bool            `json:"funds_withdrawn"`
	BidCount        int             `json:"bid_count"`
	TotalDeposits   decimal.Decimal `json:"total_deposits"`
}

// BatchRefundResult reports the outcome of an owner-driven refund page.
type BatchRefundResult struct {
	Refunded []Identity `json:"refunded"`
	Failed   []Identity `json:"failed"`
	Skipped  []Identity `json:"skipped"`
}
