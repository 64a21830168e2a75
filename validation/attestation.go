package validation

import (
	"fmt"

	"github.com/cloudx-io/openescrow/enclaveapi"
)

// validateCommonAttestation performs validation common to all attestation types
// Parses the COSE bytes internally and validates PCRs, certificate chain, and signature
// Returns BaseValidationResult with validation results and the attested user data
func validateCommonAttestation(attestationCOSEBase64 enclaveapi.AttestationCOSEBase64, opts Options) (*BaseValidationResult, []byte, error) {
	// Decode and parse COSE to get attestation document
	coseBytes, err := attestationCOSEBase64.Decode()
	if err != nil {
		return nil, nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	attestationDoc, userData, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{
		ValidationDetails: []string{},
	}

	knownPCRs := opts.PCRSets
	if len(knownPCRs) == 0 {
		knownPCRs, err = LoadPCRsFromFile(DefaultPCRConfigPath())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load PCR configuration: %w", err)
		}
	}

	// Validate PCRs
	pcrMatch, matchedSet := ValidatePCRs(attestationDoc.PCRs, knownPCRs)
	result.PCRsValid = pcrMatch
	if !pcrMatch {
		result.detail("PCR0: %s (no match)", attestationDoc.PCRs.ImageFileHash)
		result.detail("PCR1: %s (no match)", attestationDoc.PCRs.KernelHash)
		result.detail("PCR2: %s (no match)", attestationDoc.PCRs.ApplicationHash)
	} else {
		result.detail("PCR measurements valid")
		result.detail("Matched PCR set: #%d (commit: %s)", matchedSet, knownPCRs[matchedSet].CommitHash)
	}

	// Validate certificate chain at the attestation timestamp
	switch {
	case attestationDoc.Certificate == "":
		result.detail("Missing certificate")
	case len(attestationDoc.CABundle) == 0:
		result.detail("Missing CA bundle")
	default:
		err = ValidateCertificateChain(attestationDoc.Certificate, attestationDoc.CABundle, attestationDoc.Timestamp, opts.ExtraRootsPEM)
		if err != nil {
			result.detail("Certificate chain validation failed: %v", err)
		} else {
			result.CertificateValid = true
			result.detail("Certificate chain verified")
		}
	}

	// Verify COSE signature
	err = VerifyCOSESignature(attestationCOSEBase64, attestationDoc.Certificate)
	if err != nil {
		result.detail("COSE signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		result.detail("COSE signature verified")
	}

	return result, userData, nil
}
