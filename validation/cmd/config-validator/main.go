package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

func main() {
	// Define CLI flags
	var (
		infoPath     = flag.String("info", "", "Path to auction info JSON file (required)")
		pcrsPath     = flag.String("pcrs", "", "PCR configuration file (default: validation/pcrs.json)")
		rootPath     = flag.String("root", "", "Extra trusted root certificate PEM file")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	// Show help
	if *help || *infoPath == "" {
		showUsage()
		if *infoPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	info, err := readAuctionInfo(*infoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading auction info: %v\n", err)
		os.Exit(2)
	}

	var opts validation.Options
	if *pcrsPath != "" {
		if opts.PCRSets, err = validation.LoadPCRsFromFile(*pcrsPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading PCRs: %v\n", err)
			os.Exit(2)
		}
	}
	if *rootPath != "" {
		if opts.ExtraRootsPEM, err = os.ReadFile(*rootPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading root certificate: %v\n", err)
			os.Exit(2)
		}
	}

	// Validate using library
	result, err := validation.ValidateConfigAttestation(info, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if *outputFormat == "json" {
		if err := outputJSON(result, info); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result, info)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Escrow Config Attestation Validator")
	logger.Info("")
	logger.Info("Checks that the auction terms served by an escrow enclave are the terms it attested,")
	logger.Info("before you bid under them.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  config-validator --info <path> [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --info <path>                     Auction info JSON ('escrowctl info' or GET /v1/auction)")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --pcrs <path>                     PCR configuration file")
	logger.Info("  --root <path>                     Extra trusted root PEM (local attester)")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Examples:")
	logger.Info("  escrowctl info --format json > info.json")
	logger.Info("  config-validator --info info.json")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
	logger.Info("")
	logger.Info("Library Usage:")
	logger.Info("  This CLI tool is an example. For programmatic use, import:")
	logger.Info("  github.com/cloudx-io/openescrow/validation")
}

func readAuctionInfo(path string) (*enclaveapi.AuctionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return validation.ParseAuctionInfo(data)
}

func outputText(result *validation.ConfigValidationResult, info *enclaveapi.AuctionInfo) {
	logger.Info("Escrow Config Attestation Validator")
	logger.Info("===================================")
	logger.Info("")

	logger.Info("Auction Terms:")
	logger.Info("--------------")
	logger.Info(fmt.Sprintf("  Auction ID:          %s", info.Config.ID))
	logger.Info(fmt.Sprintf("  Owner:               %s", info.Config.Owner))
	logger.Info(fmt.Sprintf("  End Time:            %s", info.Config.EndTime))
	logger.Info(fmt.Sprintf("  Extension Budget:    %s", info.Config.ExtensionBudget))
	logger.Info(fmt.Sprintf("  Escrow Account:      %s", info.EscrowAccount))

	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  PCRs Valid:          %v", result.PCRsValid))
	logger.Info(fmt.Sprintf("  Certificate Valid:   %v", result.CertificateValid))
	logger.Info(fmt.Sprintf("  Signature Valid:     %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Config Hash Valid:   %v", result.ConfigHashValid))
	logger.Info(fmt.Sprintf("  Request Token Valid: %v", result.RequestTokenValid))

	logger.Info("")
	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info("  - " + detail)
	}

	logger.Info("")
	logger.Info("===================================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(result *validation.ConfigValidationResult, info *enclaveapi.AuctionInfo) error {
	output := map[string]any{
		"valid":               result.IsValid(),
		"pcrs_valid":          result.PCRsValid,
		"certificate_valid":   result.CertificateValid,
		"signature_valid":     result.SignatureValid,
		"config_hash_valid":   result.ConfigHashValid,
		"request_token_valid": result.RequestTokenValid,
		"config":              info.Config,
		"details":             result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
