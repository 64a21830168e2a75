package validation

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

// ReceiptValidationInput is what a participant knows about an auction before
// checking its settlement receipt. Zero fields are not checked, except
// AuctionID.
type ReceiptValidationInput struct {
	AttestationCOSEBase64 enclaveapi.AttestationCOSEBase64 `json:"attestation_cose_base64"`
	AttestationCOSEGzip   enclaveapi.AttestationCOSEGzip   `json:"attestation_cose_gzip,omitempty"`

	AuctionID string `json:"auction_id"`

	// Bidder and BidAmount locate the participant's own history slot.
	Bidder    core.Identity    `json:"bidder,omitempty"`
	BidAmount *decimal.Decimal `json:"bid_amount,omitempty"`

	ExpectedWinner        core.Identity    `json:"expected_winner,omitempty"`
	ExpectedWinningAmount *decimal.Decimal `json:"expected_winning_amount,omitempty"`

	// BidHistory is the full history, e.g. from bid_history, to check against
	// the attested history hash.
	BidHistory []core.BidRecord `json:"bid_history,omitempty"`

	// Config is the terms the participant bid under.
	Config *core.Config `json:"config,omitempty"`
}

// ValidateSettlementReceipt validates a settlement receipt attestation
// Returns ReceiptValidationResult with validation results and the attested outcome
func ValidateSettlementReceipt(input *ReceiptValidationInput, opts Options) (*ReceiptValidationResult, *enclaveapi.ReceiptUserData, error) {
	coseB64, err := receiptCOSE(input)
	if err != nil {
		return nil, nil, err
	}

	baseResult, userDataBytes, err := validateCommonAttestation(coseB64, opts)
	if err != nil {
		return nil, nil, err
	}

	var userData enclaveapi.ReceiptUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, nil, fmt.Errorf("parse receipt user data: %w", err)
	}

	result := &ReceiptValidationResult{BaseValidationResult: *baseResult}

	result.AuctionIDValid = input.AuctionID != "" && input.AuctionID == userData.AuctionID
	if result.AuctionIDValid {
		result.detail("Auction ID matches: %s", userData.AuctionID)
	} else {
		result.detail("Auction ID mismatch: expected %q, receipt has %q", input.AuctionID, userData.AuctionID)
	}

	validateOutcome(result, input, &userData)
	validateBidRecord(result, input, &userData)

	switch {
	case input.BidHistory == nil:
		result.HistoryHashValid = true
		result.detail("Bid history not provided, history hash not checked")
	default:
		computed := core.ComputeHistoryHash(input.BidHistory, userData.HistoryNonce)
		result.HistoryHashValid = computed == userData.HistoryHash
		if result.HistoryHashValid {
			result.detail("History hash matches %d records", len(input.BidHistory))
		} else {
			result.detail("History hash mismatch: computed %s, receipt has %s", computed, userData.HistoryHash)
		}
	}

	switch {
	case input.Config == nil:
		result.ConfigHashValid = true
		result.detail("Config not provided, config hash not checked")
	default:
		computed := core.ComputeConfigHash(*input.Config, userData.ConfigNonce)
		result.ConfigHashValid = computed == userData.ConfigHash
		if result.ConfigHashValid {
			result.detail("Config hash matches")
		} else {
			result.detail("Config hash mismatch: computed %s, receipt has %s", computed, userData.ConfigHash)
		}
	}

	return result, &userData, nil
}

func receiptCOSE(input *ReceiptValidationInput) (enclaveapi.AttestationCOSEBase64, error) {
	if input.AttestationCOSEBase64 != "" {
		return input.AttestationCOSEBase64, nil
	}
	if input.AttestationCOSEGzip == "" {
		return "", fmt.Errorf("receipt attestation is required")
	}
	coseBytes, err := input.AttestationCOSEGzip.Decompress()
	if err != nil {
		return "", fmt.Errorf("decompress receipt: %w", err)
	}
	return coseBytes.EncodeBase64(), nil
}

func validateOutcome(result *ReceiptValidationResult, input *ReceiptValidationInput, userData *enclaveapi.ReceiptUserData) {
	result.OutcomeValid = true
	if input.ExpectedWinner != "" {
		if string(input.ExpectedWinner) != userData.Winner {
			result.OutcomeValid = false
			result.detail("Winner mismatch: expected %s, receipt has %q", input.ExpectedWinner, userData.Winner)
		} else {
			result.detail("Winner matches: %s", userData.Winner)
		}
	}
	if input.ExpectedWinningAmount != nil {
		attested, err := decimal.NewFromString(userData.WinningAmount)
		switch {
		case err != nil:
			result.OutcomeValid = false
			result.detail("Invalid winning amount in receipt: %q", userData.WinningAmount)
		case !attested.Equal(*input.ExpectedWinningAmount):
			result.OutcomeValid = false
			result.detail("Winning amount mismatch: expected %s, receipt has %s", input.ExpectedWinningAmount, attested)
		default:
			result.detail("Winning amount matches: %s", attested)
		}
	}
}

// validateBidRecord checks that the bidder's slot is among the attested record
// hashes.
func validateBidRecord(result *ReceiptValidationResult, input *ReceiptValidationInput, userData *enclaveapi.ReceiptUserData) {
	if input.Bidder == "" {
		result.BidRecordValid = true
		result.detail("Bidder not provided, bid record not checked")
		return
	}
	if input.BidAmount == nil {
		result.detail("Bid amount is required to locate the bid record of %s", input.Bidder)
		return
	}

	hash := core.ComputeBidRecordHash(input.Bidder, *input.BidAmount, userData.BidRecordNonce)
	if i := slices.Index(userData.BidRecordHashes, hash); i >= 0 {
		result.BidRecordValid = true
		result.detail("Bid record found at slot %d", i)
		return
	}
	result.detail("Bid record for %s (%s) not in receipt (%d records)", input.Bidder, input.BidAmount, len(userData.BidRecordHashes))
}
