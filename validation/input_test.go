package validation

import (
	"encoding/json"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openescrow/enclaveapi"
)

func TestParseReceipt(t *testing.T) {
	receipt := &enclaveapi.Receipt{
		UserData:              &enclaveapi.ReceiptUserData{ReceiptID: "r-1"},
		AttestationCOSEBase64: "AAAA",
	}

	bare, err := json.Marshal(receipt)
	assert.NoError(t, err)
	got, err := ParseReceipt(bare)
	assert.NoError(t, err)
	check.Equal(t, enclaveapi.AttestationCOSEBase64("AAAA"), got.AttestationCOSEBase64)

	wrapped, err := json.Marshal(&enclaveapi.EnclaveResponse{Type: "receipt_response", Success: true, Receipt: receipt})
	assert.NoError(t, err)
	got, err = ParseReceipt(wrapped)
	assert.NoError(t, err)
	check.Equal(t, "r-1", got.UserData.ReceiptID)

	_, err = ParseReceipt([]byte(`{"type":"receipt_response","success":false,"error_code":"wrong_phase"}`))
	check.Error(t, err)
	_, err = ParseReceipt([]byte(`[`))
	check.Error(t, err)
}

func TestParseAuctionInfo(t *testing.T) {
	info := &enclaveapi.AuctionInfo{RequestToken: "token-1", AttestationCOSEBase64: "AAAA"}

	wrapped, err := json.Marshal(&enclaveapi.EnclaveResponse{Type: "auction_info_response", Success: true, AuctionInfo: info})
	assert.NoError(t, err)
	got, err := ParseAuctionInfo(wrapped)
	assert.NoError(t, err)
	check.Equal(t, "token-1", got.RequestToken)

	info.AttestationCOSEBase64 = ""
	unattested, err := json.Marshal(&enclaveapi.EnclaveResponse{Type: "auction_info_response", Success: true, AuctionInfo: info})
	assert.NoError(t, err)
	_, err = ParseAuctionInfo(unattested)
	check.Error(t, err)
}
