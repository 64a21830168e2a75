package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

type fakeEnclave struct {
	addr string
	reqs []enclaveapi.EnclaveRequest
	resp *enclaveapi.EnclaveResponse
}

func (f *fakeEnclave) Do(_ context.Context, req enclaveapi.EnclaveRequest) (*enclaveapi.EnclaveResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.resp != nil {
		return f.resp, nil
	}
	return &enclaveapi.EnclaveResponse{Type: enclaveapi.ResponseType(req.Type), Success: true, Message: "ok"}, nil
}

func run(t *testing.T, f *fakeEnclave, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{dial: func(addr string, _ time.Duration) (Enclave, error) {
		f.addr = addr
		return f, nil
	}})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.NotNil(t, cmd)
	check.Equal(t, "escrowctl", cmd.Use)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	assert.NotNil(t, formatFlag)
	check.Equal(t, "text", formatFlag.DefValue)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"ping", "info", "status", "count", "winner", "bids", "balance", "events", "receipt",
		"bid", "deposit", "withdraw", "end", "cancel", "claim", "refund", "cancel-withdraw", "sweep", "refund-batch",
	}
	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			assert.NoError(t, err)
			check.Equal(t, name, sub.Name())
		})
	}
}

func TestCallCommands(t *testing.T) {
	tests := []struct {
		args   []string
		typ    string
		caller core.Identity
		amount string
	}{
		{[]string{"bid", "bob", "105"}, enclaveapi.TypePlaceBid, "bob", "105"},
		{[]string{"deposit", "bob", "20"}, enclaveapi.TypeDeposit, "bob", "20"},
		{[]string{"withdraw", "bob"}, enclaveapi.TypeWithdrawExcess, "bob", ""},
		{[]string{"end", "alice"}, enclaveapi.TypeEndEarly, "alice", ""},
		{[]string{"cancel", "alice"}, enclaveapi.TypeCancel, "alice", ""},
		{[]string{"claim", "alice"}, enclaveapi.TypeClaimWinnings, "alice", ""},
		{[]string{"refund", "carol"}, enclaveapi.TypeRefund, "carol", ""},
		{[]string{"cancel-withdraw", "carol"}, enclaveapi.TypeCancellationWithdraw, "carol", ""},
		{[]string{"sweep", "alice"}, enclaveapi.TypeEmergencySweep, "alice", ""},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			f := &fakeEnclave{}
			_, err := run(t, f, append(tt.args, "--request-id", "0b6c1c4e-8f0e-4d33-a5b8-1f3f1c0de001")...)
			assert.NoError(t, err)
			assert.Equal(t, 1, len(f.reqs))

			req := f.reqs[0]
			check.Equal(t, tt.typ, req.Type)
			check.Equal(t, tt.caller, req.Caller)
			check.Equal(t, "0b6c1c4e-8f0e-4d33-a5b8-1f3f1c0de001", req.RequestID)
			if tt.amount == "" {
				check.Nil(t, req.Amount)
			} else {
				assert.NotNil(t, req.Amount)
				check.Equal(t, tt.amount, req.Amount.String())
			}
		})
	}
}

func TestCallCommands_BadArgs(t *testing.T) {
	f := &fakeEnclave{}
	_, err := run(t, f, "bid", "bob", "lots")
	check.Error(t, err)
	_, err = run(t, f, "bid", "bob")
	check.Error(t, err)
	_, err = run(t, f, "status", "--format", "yaml")
	check.Error(t, err)
	check.Equal(t, 0, len(f.reqs))
}

func TestQueryCommands(t *testing.T) {
	f := &fakeEnclave{}
	_, err := run(t, f, "--enclave", "tcp://10.0.0.1:5000", "events", "--account", "bob", "--offset", "2", "--limit", "5")
	assert.NoError(t, err)
	check.Equal(t, "tcp://10.0.0.1:5000", f.addr)
	req := f.reqs[0]
	check.Equal(t, enclaveapi.TypeEvents, req.Type)
	check.Equal(t, core.Identity("bob"), req.Account)
	check.Equal(t, 2, req.Offset)
	check.Equal(t, 5, req.Limit)

	_, err = run(t, f, "balance", "carol")
	assert.NoError(t, err)
	check.Equal(t, core.Identity("carol"), f.reqs[1].Account)

	_, err = run(t, f, "refund-batch", "alice", "--limit", "25")
	assert.NoError(t, err)
	check.Equal(t, enclaveapi.TypeRefundBatch, f.reqs[2].Type)
	check.Equal(t, 25, f.reqs[2].Limit)
}

func TestRejectedRequestIsAnError(t *testing.T) {
	f := &fakeEnclave{resp: &enclaveapi.EnclaveResponse{
		Type:      "place_bid_response",
		Message:   "bid does not meet minimum increment",
		ErrorCode: core.CodeInvalidAmount,
	}}
	out, err := run(t, f, "bid", "bob", "101")

	var respErr *ResponseError
	assert.True(t, errors.As(err, &respErr))
	check.Equal(t, core.CodeInvalidAmount, respErr.Code)
	check.True(t, strings.Contains(out, "error (invalid_amount)"))
}

func TestStatusText(t *testing.T) {
	bid := decimal.NewFromInt(105)
	f := &fakeEnclave{resp: &enclaveapi.EnclaveResponse{
		Type:    "status_response",
		Success: true,
		Status: &core.Status{
			ID:             "spring-sale",
			Phase:          core.PhaseActive,
			HighestBidder:  "carol",
			HighestBid:     bid,
			MinimumNextBid: decimal.NewFromInt(111),
			BidCount:       2,
		},
	}}
	out, err := run(t, f, "status")
	assert.NoError(t, err)
	check.True(t, strings.Contains(out, "spring-sale"))
	check.True(t, strings.Contains(out, "carol"))
	check.True(t, strings.Contains(out, "111"))
}

func TestJSONOutput(t *testing.T) {
	n := 3
	f := &fakeEnclave{resp: &enclaveapi.EnclaveResponse{Type: "bid_count_response", Success: true, BidCount: &n}}
	out, err := run(t, f, "count", "--format", "json")
	assert.NoError(t, err)

	var resp enclaveapi.EnclaveResponse
	assert.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotNil(t, resp.BidCount)
	check.Equal(t, 3, *resp.BidCount)
}

func TestReceiptOut(t *testing.T) {
	raw := enclaveapi.AttestationCOSE([]byte{0x84, 0x40, 0xa0, 0x40, 0x40})
	f := &fakeEnclave{resp: &enclaveapi.EnclaveResponse{
		Type:    "receipt_response",
		Success: true,
		Receipt: &enclaveapi.Receipt{
			UserData:              &enclaveapi.ReceiptUserData{ReceiptID: "r-1"},
			AttestationCOSEBase64: raw.EncodeBase64(),
		},
	}}
	path := filepath.Join(t.TempDir(), "receipt.json")
	_, err := run(t, f, "receipt", "--out", path)
	assert.NoError(t, err)

	written, err := os.ReadFile(path)
	assert.NoError(t, err)
	var receipt enclaveapi.Receipt
	assert.NoError(t, json.Unmarshal(written, &receipt))
	check.Equal(t, "r-1", receipt.UserData.ReceiptID)
	decoded, err := receipt.AttestationCOSEBase64.Decode()
	assert.NoError(t, err)
	check.Equal(t, raw, decoded)
}
