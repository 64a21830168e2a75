package validation

import (
	"encoding/json"
	"fmt"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

// ValidateConfigAttestation validates the attestation returned with
// auction_info: the terms in info must be the terms the enclave attested, and
// the request token must be the one it issued.
func ValidateConfigAttestation(info *enclaveapi.AuctionInfo, opts Options) (*ConfigValidationResult, error) {
	if info.AttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("auction info is not attested")
	}

	baseResult, userDataBytes, err := validateCommonAttestation(info.AttestationCOSEBase64, opts)
	if err != nil {
		return nil, err
	}

	var userData enclaveapi.ConfigUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse config user data: %w", err)
	}

	result := &ConfigValidationResult{BaseValidationResult: *baseResult}

	computed := core.ComputeConfigHash(info.Config, userData.ConfigNonce)
	switch {
	case computed != userData.ConfigHash:
		result.detail("Config hash mismatch: computed %s, attested %s", computed, userData.ConfigHash)
	case info.ConfigHash != userData.ConfigHash:
		result.detail("Reported config hash %s differs from attested %s", info.ConfigHash, userData.ConfigHash)
	case userData.AuctionID != info.Config.ID || userData.Owner != string(info.Config.Owner):
		result.detail("Attested auction %s/%s differs from config %s/%s", userData.AuctionID, userData.Owner, info.Config.ID, info.Config.Owner)
	default:
		result.ConfigHashValid = true
		result.detail("Config hash verified: %s", computed)
	}

	result.RequestTokenValid = userData.RequestToken != "" && userData.RequestToken == info.RequestToken
	if result.RequestTokenValid {
		result.detail("Request token attested")
	} else {
		result.detail("Request token mismatch: reported %q, attested %q", info.RequestToken, userData.RequestToken)
	}

	return result, nil
}
