package core

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestBidHistory_Upsert(t *testing.T) {
	h := NewBidHistory()

	i, added := h.Upsert(bidderA, amt(100))
	check.Equal(t, 0, i)
	check.True(t, added)
	i, added = h.Upsert(bidderB, amt(105))
	check.Equal(t, 1, i)
	check.True(t, added)
	i, added = h.Upsert(bidderA, amt(120))
	check.Equal(t, 0, i)
	check.False(t, added)

	check.Equal(t, 2, h.Len())
	rec, ok := h.Get(bidderA)
	assert.True(t, ok)
	check.Equal(t, "120", rec.Amount.String())
	_, ok = h.Get(bidderC)
	check.False(t, ok)
}

func TestBidHistory_Page(t *testing.T) {
	h := NewBidHistory()
	for i, id := range []Identity{"b0", "b1", "b2", "b3", "b4"} {
		h.Upsert(id, amt(int64(100+i)))
	}

	page, err := h.Page(3, 10)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(page))
	check.Equal(t, Identity("b3"), page[0].Bidder)
	check.Equal(t, Identity("b4"), page[1].Bidder)

	page, err = h.Page(0, 2)
	assert.NoError(t, err)
	check.Equal(t, 2, len(page))

	page, err = h.Page(4, 0)
	assert.NoError(t, err)
	check.Equal(t, 0, len(page))

	_, err = h.Page(5, 1)
	check.True(t, errors.Is(err, ErrOutOfRange))
	_, err = h.Page(-1, 1)
	check.True(t, errors.Is(err, ErrOutOfRange))
	_, err = h.Page(0, -1)
	check.True(t, errors.Is(err, ErrOutOfRange))

	// Pages are copies.
	page, err = h.Page(0, 1)
	assert.NoError(t, err)
	page[0].Bidder = "mutated"
	rec, _ := h.Get("b0")
	check.Equal(t, Identity("b0"), rec.Bidder)
}

func TestBidHistory_EmptyPageIsOutOfRange(t *testing.T) {
	_, err := NewBidHistory().Page(0, 10)
	check.True(t, errors.Is(err, ErrOutOfRange))
}

func TestAuction_BidHistoryPage(t *testing.T) {
	a, rt := newTestAuction(t)
	assert.NoError(t, bid(a, rt, bidderA, 100))
	assert.NoError(t, bid(a, rt, bidderB, 105))
	assert.NoError(t, bid(a, rt, bidderC, 111))

	page, err := a.BidHistoryPage(1, 5)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(page))
	check.Equal(t, bidderB, page[0].Bidder)
	check.Equal(t, bidderC, page[1].Bidder)
	check.Equal(t, 3, a.BidCount())
}
