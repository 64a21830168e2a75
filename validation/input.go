package validation

import (
	"encoding/json"
	"fmt"

	"github.com/cloudx-io/openescrow/enclaveapi"
)

// ParseReceipt reads a settlement receipt either bare, as written by
// escrowctl receipt --out, or wrapped in the enclave response returned by the
// gateway.
func ParseReceipt(data []byte) (*enclaveapi.Receipt, error) {
	var receipt enclaveapi.Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	if receipt.AttestationCOSEBase64 == "" && receipt.AttestationCOSEGzip == "" {
		var resp enclaveapi.EnclaveResponse
		if err := json.Unmarshal(data, &resp); err != nil || resp.Receipt == nil {
			return nil, fmt.Errorf("no receipt attestation found")
		}
		receipt = *resp.Receipt
	}
	return &receipt, nil
}

// ParseAuctionInfo reads auction info either bare or wrapped in an enclave
// response.
func ParseAuctionInfo(data []byte) (*enclaveapi.AuctionInfo, error) {
	var info enclaveapi.AuctionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse auction info: %w", err)
	}
	if info.AttestationCOSEBase64 == "" {
		var resp enclaveapi.EnclaveResponse
		if err := json.Unmarshal(data, &resp); err != nil || resp.AuctionInfo == nil {
			return nil, fmt.Errorf("missing attestation_cose_base64 field in auction info")
		}
		info = *resp.AuctionInfo
		if info.AttestationCOSEBase64 == "" {
			return nil, fmt.Errorf("auction info is not attested")
		}
	}
	return &info, nil
}
