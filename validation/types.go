package validation

import "fmt"

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

func (r *BaseValidationResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// ReceiptValidationResult contains validation results specific to settlement receipts
type ReceiptValidationResult struct {
	BaseValidationResult
	AuctionIDValid   bool
	OutcomeValid     bool
	BidRecordValid   bool
	HistoryHashValid bool
	ConfigHashValid  bool
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.AuctionIDValid && r.OutcomeValid && r.BidRecordValid && r.HistoryHashValid && r.ConfigHashValid
}

// ConfigValidationResult contains validation results specific to config attestations
type ConfigValidationResult struct {
	BaseValidationResult
	ConfigHashValid   bool
	RequestTokenValid bool
}

// IsValid returns true if all config validation checks passed
func (r *ConfigValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.ConfigHashValid && r.RequestTokenValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // openescrow repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}

// Options selects what an attestation is checked against.
type Options struct {
	// PCRSets are the accepted measurements. When empty they are loaded from
	// DefaultPCRConfigPath.
	PCRSets []PCRSet

	// ExtraRootsPEM are trusted in addition to the AWS Nitro root, e.g. the
	// root written by a local development attester.
	ExtraRootsPEM []byte
}
