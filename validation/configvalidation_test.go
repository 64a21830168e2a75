package validation

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

func testAuctionInfo(t *testing.T, signer *testSigner) *enclaveapi.AuctionInfo {
	t.Helper()
	hash := core.ComputeConfigHash(testConfig, "config-nonce")
	userData := &enclaveapi.ConfigUserData{
		AuctionID:    testConfig.ID,
		Owner:        string(testConfig.Owner),
		ConfigHash:   hash,
		ConfigNonce:  "config-nonce",
		RequestToken: "token-1",
		Timestamp:    time.Now().UTC(),
	}
	return &enclaveapi.AuctionInfo{
		Config:                testConfig,
		ConfigHash:            hash,
		ConfigNonce:           "config-nonce",
		EscrowAccount:         "escrow",
		RequestToken:          "token-1",
		AttestationCOSEBase64: signer.attest(t, userData),
	}
}

func TestValidateConfigAttestation(t *testing.T) {
	signer := newTestSigner(t)

	t.Run("valid", func(t *testing.T) {
		result, err := ValidateConfigAttestation(testAuctionInfo(t, signer), signer.options())
		assert.NoError(t, err)
		check.True(t, result.ConfigHashValid)
		check.True(t, result.RequestTokenValid)
		check.True(t, result.IsValid())
	})

	t.Run("altered terms", func(t *testing.T) {
		info := testAuctionInfo(t, signer)
		info.Config.RefundFeePercent = 1
		result, err := ValidateConfigAttestation(info, signer.options())
		assert.NoError(t, err)
		check.False(t, result.ConfigHashValid)
		check.True(t, result.RequestTokenValid)
		check.False(t, result.IsValid())
	})

	t.Run("swapped token", func(t *testing.T) {
		info := testAuctionInfo(t, signer)
		info.RequestToken = "token-2"
		result, err := ValidateConfigAttestation(info, signer.options())
		assert.NoError(t, err)
		check.True(t, result.ConfigHashValid)
		check.False(t, result.RequestTokenValid)
	})

	t.Run("unattested", func(t *testing.T) {
		info := testAuctionInfo(t, signer)
		info.AttestationCOSEBase64 = ""
		_, err := ValidateConfigAttestation(info, signer.options())
		check.Error(t, err)
	})
}
