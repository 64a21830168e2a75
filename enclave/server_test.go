package main

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/enclaveclient"
	"github.com/cloudx-io/openescrow/journal"
)

func TestNewEnclaveServer_Validation(t *testing.T) {
	store, err := journal.Open(journal.MemoryPath)
	assert.NoError(t, err)
	defer store.Close()

	f := auctionFile(time.Now())
	_, err = NewEnclaveServer(f, nil, nil, nil)
	check.Error(t, err)

	f = auctionFile(time.Now())
	f.Auction.Owner = f.EscrowAccount
	_, err = NewEnclaveServer(f, store, nil, nil)
	check.Error(t, err)

	f = auctionFile(time.Now())
	f.Genesis = append(f.Genesis, GenesisBalance{Account: f.EscrowAccount, Balance: "5"})
	_, err = NewEnclaveServer(f, store, nil, nil)
	check.Error(t, err)
}

func TestListen(t *testing.T) {
	l, err := listen("tcp://127.0.0.1:0")
	assert.NoError(t, err)
	check.NoError(t, l.Close())

	_, err = listen("http://127.0.0.1:8080")
	check.Error(t, err)
}

func TestServe_EndToEnd(t *testing.T) {
	env := newTestEnv(t, CreateMockEnclave(t))

	l, err := listen("tcp://127.0.0.1:0")
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, l, 4) }()

	client, err := enclaveclient.New("tcp://" + l.Addr().String())
	assert.NoError(t, err)
	client = client.WithTimeout(5 * time.Second)

	assert.NoError(t, client.Ping(ctx))

	amount := decimal.NewFromInt(100)
	resp, err := client.Call(ctx, enclaveapi.TypePlaceBid, bidderA, &amount)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	check.Equal(t, "place_bid_response", resp.Type)
	check.Equal(t, bidderA, resp.Status.HighestBidder)

	low := decimal.NewFromInt(101)
	resp, err = client.Call(ctx, enclaveapi.TypePlaceBid, bidderB, &low)
	assert.NoError(t, err)
	check.False(t, resp.Success)
	check.Equal(t, core.CodeInvalidAmount, resp.ErrorCode)

	resp, err = client.Query(ctx, enclaveapi.TypeBalance, bidderA, 0, 0)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	check.Equal(t, "900", resp.Balance.Available.String())
	check.Equal(t, "100", resp.Balance.StandingBid.String())

	resp, err = client.Query(ctx, enclaveapi.TypeAuctionInfo, "", 0, 0)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	check.NotEqual(t, "", string(resp.AuctionInfo.AttestationCOSEBase64))

	cancel()
	select {
	case err := <-done:
		check.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
