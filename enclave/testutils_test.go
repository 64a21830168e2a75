package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/journal"
	"github.com/cloudx-io/openescrow/ledger"
)

const (
	owner   core.Identity = "alice"
	bidderA core.Identity = "bob"
	bidderB core.Identity = "carol"
)

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// CreateMockEnclave creates a mock enclave handle that wraps the user data in
// an unsigned Nitro-shaped document.
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id":   "test-enclave-12345",
				"digest":      "SHA384",
				"timestamp":   uint64(1234567890),
				"pcrs":        map[uint64][]byte{0: make([]byte, 48)},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}
			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, err
			}

			// AWS Nitro 4-element array format: [header, metadata, nested_doc, signature]
			return cbor.Marshal([]any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			})
		},
	}
}

type testEnv struct {
	server *EnclaveServer
	clock  *ledger.ManualClock
	store  *journal.Store
	start  time.Time
}

func auctionFile(start time.Time) *AuctionFile {
	return &AuctionFile{
		Auction: AuctionSection{Config: core.Config{
			ID:              "spring-sale",
			Owner:           owner,
			EndTime:         start.Add(time.Hour),
			ExtensionBudget: 30 * time.Minute,
		}},
		EscrowAccount: "escrow",
		Genesis: []GenesisBalance{
			{Account: bidderA, Balance: "1000"},
			{Account: bidderB, Balance: "1000"},
		},
	}
}

func newTestEnv(t *testing.T, attester EnclaveAttester) *testEnv {
	t.Helper()
	start := time.Now()
	clock := ledger.NewManualClock(start)

	store, err := journal.Open(journal.MemoryPath)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	server, err := NewEnclaveServer(auctionFile(start), store, attester, clock)
	assert.NoError(t, err)
	return &testEnv{server: server, clock: clock, store: store, start: start}
}

func (e *testEnv) send(t *testing.T, req enclaveapi.EnclaveRequest) *enclaveapi.EnclaveResponse {
	t.Helper()
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	data, err := json.Marshal(req)
	assert.NoError(t, err)
	return e.server.handleRequest(context.Background(), data)
}

func (e *testEnv) mutate(t *testing.T, typ string, caller core.Identity, amount int64) *enclaveapi.EnclaveResponse {
	t.Helper()
	req := enclaveapi.EnclaveRequest{
		Type:      typ,
		RequestID: uuid.NewString(),
		Caller:    caller,
	}
	if amount != 0 {
		v := decimal.NewFromInt(amount)
		req.Amount = &v
	}
	return e.send(t, req)
}
