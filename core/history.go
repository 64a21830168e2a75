package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BidHistory is the ordered record of bidders. A bidder occupies exactly one
// slot for their entire participation; later bids update the slot in place.
// Slot order is first-bid order.
type BidHistory struct {
	records []BidRecord
	index   map[Identity]int
}

// NewBidHistory returns an empty history.
func NewBidHistory() *BidHistory {
	return &BidHistory{index: make(map[Identity]int)}
}

// Len returns the number of distinct bidders.
func (h *BidHistory) Len() int {
	return len(h.records)
}

// Get returns the record of bidder, if any.
func (h *BidHistory) Get(bidder Identity) (BidRecord, bool) {
	i, ok := h.index[bidder]
	if !ok {
		return BidRecord{}, false
	}
	return h.records[i], true
}

// Upsert sets bidder's amount, appending a slot on the bidder's first bid.
// It returns the slot index and whether the slot is new.
func (h *BidHistory) Upsert(bidder Identity, amount decimal.Decimal) (int, bool) {
	if i, ok := h.index[bidder]; ok {
		h.records[i].Amount = amount
		return i, false
	}
	h.records = append(h.records, BidRecord{Bidder: bidder, Amount: amount})
	h.index[bidder] = len(h.records) - 1
	return len(h.records) - 1, true
}

// Page returns up to limit records starting at offset. An offset at or beyond
// the end of the history is an ErrOutOfRange.
func (h *BidHistory) Page(offset, limit int) ([]BidRecord, error) {
	if offset < 0 || offset >= len(h.records) {
		return nil, fmt.Errorf("%w: offset %d, history length %d", ErrOutOfRange, offset, len(h.records))
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrOutOfRange, limit)
	}
	end := min(offset+limit, len(h.records))
	page := make([]BidRecord, end-offset)
	copy(page, h.records[offset:end])
	return page, nil
}

// Records returns a copy of the full history.
func (h *BidHistory) Records() []BidRecord {
	out := make([]BidRecord, len(h.records))
	copy(out, h.records)
	return out
}

// truncate drops slots appended after n; used when reverting a failed call.
func (h *BidHistory) truncate(n int) {
	for _, r := range h.records[n:] {
		delete(h.index, r.Bidder)
	}
	h.records = h.records[:n]
}
