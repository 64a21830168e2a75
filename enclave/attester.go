package main

import (
	"fmt"
	"log/slog"
	"os"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// selectAttester prefers the NSM. Without it, the software attester is used
// only when allowLocal is set; otherwise attested requests fail.
func selectAttester(allowLocal bool, rootPEMPath string) EnclaveAttester {
	attester, err := getEnclaveAttester()
	if err == nil {
		slog.Info("NSM attester initialized")
		return attester
	}
	if !allowLocal {
		slog.Error("No attester available, receipts and auction info will fail", "error", err)
		return nil
	}

	slog.Warn("NSM unavailable, using local software attester", "error", err)
	km, err := NewKeyManager()
	if err != nil {
		slog.Error("Failed to initialize local attester", "error", err)
		return nil
	}
	if rootPEMPath != "" {
		if err := os.WriteFile(rootPEMPath, []byte(km.RootPEM()), 0o644); err != nil {
			slog.Error("Failed to write local attester root certificate", "path", rootPEMPath, "error", err)
		} else {
			slog.Info("Local attester root certificate written", "path", rootPEMPath)
		}
	}
	return km
}
