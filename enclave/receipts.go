package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

// outcomeSnapshot is the auction state a settlement receipt attests to,
// captured under the host lock.
type outcomeSnapshot struct {
	Config        core.Config
	Status        core.Status
	Winner        core.Identity
	WinningAmount decimal.Decimal
	Records       []core.BidRecord
}

func snapshotOutcome(a *core.Auction) outcomeSnapshot {
	winner, amount := a.Winner()
	return outcomeSnapshot{
		Config:        a.Config(),
		Status:        a.Status(),
		Winner:        winner,
		WinningAmount: amount,
		Records:       a.BidHistory(),
	}
}

// GenerateSettlementReceipt attests the outcome in snap. Bid records are
// included only as salted hashes.
func GenerateSettlementReceipt(attester EnclaveAttester, snap outcomeSnapshot) (enclaveapi.AttestationCOSE, *enclaveapi.ReceiptUserData, error) {
	recordNonce, err := generateNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate bid record nonce: %w", err)
	}
	historyNonce, err := generateNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate history nonce: %w", err)
	}
	configNonce, err := generateNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate config nonce: %w", err)
	}

	recordHashes := make([]string, 0, len(snap.Records))
	for _, rec := range snap.Records {
		recordHashes = append(recordHashes, core.ComputeBidRecordHash(rec.Bidder, rec.Amount, recordNonce))
	}

	userData := &enclaveapi.ReceiptUserData{
		ReceiptID:       uuid.NewString(),
		AuctionID:       snap.Config.ID,
		Phase:           string(snap.Status.Phase),
		EndTime:         snap.Status.EndTime,
		Winner:          string(snap.Winner),
		WinningAmount:   snap.WinningAmount.String(),
		FundsWithdrawn:  snap.Status.FundsWithdrawn,
		TotalDeposits:   snap.Status.TotalDeposits.String(),
		BidRecordHashes: recordHashes,
		BidRecordNonce:  recordNonce,
		HistoryHash:     core.ComputeHistoryHash(snap.Records, historyNonce),
		HistoryNonce:    historyNonce,
		ConfigHash:      core.ComputeConfigHash(snap.Config, configNonce),
		ConfigNonce:     configNonce,
		Timestamp:       time.Now().UTC(),
	}

	coseBytes, err := attest(attester, userData)
	if err != nil {
		return nil, nil, fmt.Errorf("settlement receipt: %w", err)
	}
	slog.Info("Settlement receipt generated", "auction_id", userData.AuctionID, "receipt_id", userData.ReceiptID, "bytes", len(coseBytes))
	return coseBytes, userData, nil
}

// GenerateConfigAttestation attests the terms of the auction together with a
// fresh request token.
func GenerateConfigAttestation(attester EnclaveAttester, cfg core.Config, requestToken string) (enclaveapi.AttestationCOSE, *enclaveapi.ConfigUserData, error) {
	configNonce, err := generateNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate config nonce: %w", err)
	}

	userData := &enclaveapi.ConfigUserData{
		AuctionID:    cfg.ID,
		Owner:        string(cfg.Owner),
		ConfigHash:   core.ComputeConfigHash(cfg, configNonce),
		ConfigNonce:  configNonce,
		RequestToken: requestToken,
		Timestamp:    time.Now().UTC(),
	}

	coseBytes, err := attest(attester, userData)
	if err != nil {
		return nil, nil, fmt.Errorf("config attestation: %w", err)
	}
	return coseBytes, userData, nil
}

func attest(attester EnclaveAttester, userData any) (enclaveapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}
	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		slog.Error("NSM attestation failed", "error", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}
	return enclaveapi.AttestationCOSE(attestationCBOR), nil
}

// generateSecureRandomBytes generates cryptographically secure random bytes
// Uses crypto/rand which automatically leverages the best available entropy:
// - In NSM enclave: crypto/rand uses NSM-enhanced kernel entropy pool
// - In development: crypto/rand uses standard kernel entropy pool
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
