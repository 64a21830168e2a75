package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/validation"
)

func main() {
	// Define CLI flags
	var (
		receiptInput  = flag.String("receipt", "", "Settlement receipt JSON (file path or inline JSON)")
		auctionID     = flag.String("auction-id", "", "Auction ID the receipt must be for")
		bidder        = flag.String("bidder", "", "Your bidder identity")
		bidAmount     = flag.String("bid-amount", "", "Your final standing bid")
		winner        = flag.String("winner", "", "Expected winner")
		winningAmount = flag.String("winning-amount", "", "Expected winning amount")
		historyInput  = flag.String("history", "", "Bid history JSON array (file path or inline JSON)")
		configInput   = flag.String("config", "", "Auction config JSON (file path or inline JSON)")
		pcrsPath      = flag.String("pcrs", "", "PCR configuration file (default: validation/pcrs.json)")
		rootPath      = flag.String("root", "", "Extra trusted root certificate PEM file")
		outputFormat  = flag.String("format", "text", "Output format: text or json")
		help          = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	// Show help
	if *help {
		showUsage()
		os.Exit(0)
	}

	if *receiptInput == "" || *auctionID == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --receipt and --auction-id are required\n")
		os.Exit(1)
	}

	input := &validation.ReceiptValidationInput{
		AuctionID:      *auctionID,
		Bidder:         core.Identity(*bidder),
		ExpectedWinner: core.Identity(*winner),
	}

	receiptJSON, err := readJSONInput(*receiptInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt: %v\n", err)
		os.Exit(2)
	}
	receipt, err := validation.ParseReceipt(receiptJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing receipt: %v\n", err)
		os.Exit(2)
	}
	input.AttestationCOSEBase64 = receipt.AttestationCOSEBase64
	input.AttestationCOSEGzip = receipt.AttestationCOSEGzip

	if input.BidAmount, err = parseAmount(*bidAmount); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing --bid-amount: %v\n", err)
		os.Exit(2)
	}
	if input.ExpectedWinningAmount, err = parseAmount(*winningAmount); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing --winning-amount: %v\n", err)
		os.Exit(2)
	}

	if *historyInput != "" {
		data, err := readJSONInput(*historyInput)
		if err == nil {
			err = json.Unmarshal(data, &input.BidHistory)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading bid history: %v\n", err)
			os.Exit(2)
		}
	}

	if *configInput != "" {
		data, err := readJSONInput(*configInput)
		if err == nil {
			input.Config = &core.Config{}
			err = json.Unmarshal(data, input.Config)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(2)
		}
	}

	opts, err := loadOptions(*pcrsPath, *rootPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trust options: %v\n", err)
		os.Exit(2)
	}

	// Validate using library
	result, userData, err := validation.ValidateSettlementReceipt(input, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if *outputFormat == "json" {
		outputJSON(result, userData)
	} else {
		outputText(result, userData)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Escrow Settlement Receipt Validator")
	fmt.Println()
	fmt.Println("Validates an attested settlement receipt against what you know about the auction.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  receipt-validator --receipt <json> --auction-id <id> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --receipt <json>                  Receipt from 'escrowctl receipt' or GET /v1/receipt")
	fmt.Println("  --auction-id <id>                 Auction the receipt must be for")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --bidder <id> --bid-amount <n>    Check your bid record is in the receipt")
	fmt.Println("  --winner <id>                     Check the attested winner")
	fmt.Println("  --winning-amount <n>              Check the attested winning amount")
	fmt.Println("  --history <json>                  Check the full bid history against the history hash")
	fmt.Println("  --config <json>                   Check the auction terms against the config hash")
	fmt.Println("  --pcrs <path>                     PCR configuration file")
	fmt.Println("  --root <path>                     Extra trusted root PEM (local attester)")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Input Format:")
	fmt.Println("  --receipt, --history and --config accept either a file path or inline JSON string.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  escrowctl receipt --out receipt.json")
	fmt.Println("  escrowctl bids --limit 500 --format json | jq .bids > history.json")
	fmt.Println("  receipt-validator \\")
	fmt.Println("    --receipt receipt.json \\")
	fmt.Println("    --auction-id auction-1 \\")
	fmt.Println("    --bidder alice --bid-amount 116 \\")
	fmt.Println("    --history history.json")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readJSONInput(input string) ([]byte, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	// Treat as inline JSON
	return []byte(input), nil
}

func parseAmount(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func loadOptions(pcrsPath, rootPath string) (validation.Options, error) {
	var opts validation.Options
	if pcrsPath != "" {
		sets, err := validation.LoadPCRsFromFile(pcrsPath)
		if err != nil {
			return opts, err
		}
		opts.PCRSets = sets
	}
	if rootPath != "" {
		pem, err := os.ReadFile(rootPath)
		if err != nil {
			return opts, fmt.Errorf("read root certificate: %w", err)
		}
		opts.ExtraRootsPEM = pem
	}
	return opts, nil
}

func outputText(result *validation.ReceiptValidationResult, userData *enclaveapi.ReceiptUserData) {
	fmt.Println("Escrow Settlement Receipt Validator")
	fmt.Println("===================================")
	fmt.Println()

	fmt.Println("Attested Outcome:")
	fmt.Println("-----------------")
	fmt.Printf("  Receipt ID:              %s\n", userData.ReceiptID)
	fmt.Printf("  Auction ID:              %s\n", userData.AuctionID)
	fmt.Printf("  Phase:                   %s\n", userData.Phase)
	fmt.Printf("  Winner:                  %s\n", userData.Winner)
	fmt.Printf("  Winning Amount:          %s\n", userData.WinningAmount)
	fmt.Printf("  Funds Withdrawn:         %v\n", userData.FundsWithdrawn)
	fmt.Printf("  Bid Records:             %d\n", len(userData.BidRecordHashes))

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  PCRs Valid:              %v\n", result.PCRsValid)
	fmt.Printf("  Certificate Valid:       %v\n", result.CertificateValid)
	fmt.Printf("  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Printf("  Auction ID Valid:        %v\n", result.AuctionIDValid)
	fmt.Printf("  Outcome Valid:           %v\n", result.OutcomeValid)
	fmt.Printf("  Bid Record Valid:        %v\n", result.BidRecordValid)
	fmt.Printf("  History Hash Valid:      %v\n", result.HistoryHashValid)
	fmt.Printf("  Config Hash Valid:       %v\n", result.ConfigHashValid)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("===================================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
		fmt.Println("Exit Code: 0")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
		fmt.Println("Exit Code: 1")
	}
}

func outputJSON(result *validation.ReceiptValidationResult, userData *enclaveapi.ReceiptUserData) {
	output := map[string]any{
		"valid":              result.IsValid(),
		"pcrs_valid":         result.PCRsValid,
		"certificate_valid":  result.CertificateValid,
		"signature_valid":    result.SignatureValid,
		"auction_id_valid":   result.AuctionIDValid,
		"outcome_valid":      result.OutcomeValid,
		"bid_record_valid":   result.BidRecordValid,
		"history_hash_valid": result.HistoryHashValid,
		"config_hash_valid":  result.ConfigHashValid,
		"receipt":            userData,
		"details":            result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
