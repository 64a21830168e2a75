package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/journal"
)

const (
	defaultListen        = "vsock://:5000"
	defaultEscrowAccount = core.Identity("escrow")
)

// AuctionFile is the YAML auction definition loaded at startup.
//
//	auction:
//	  id: spring-sale
//	  owner: alice
//	  duration: 2h
//	  extension_budget: 30m
//	escrow_account: escrow
//	genesis:
//	  - account: bob
//	    balance: "1000"
//	require_issued_tokens: false
type AuctionFile struct {
	Auction       AuctionSection   `yaml:"auction"`
	EscrowAccount core.Identity    `yaml:"escrow_account"`
	Genesis       []GenesisBalance `yaml:"genesis"`

	// RequireIssuedTokens admits only mutations whose request id is a token
	// handed out with auction_info.
	RequireIssuedTokens bool `yaml:"require_issued_tokens"`
}

// AuctionSection embeds the auction parameters. Duration, if set, places
// the deadline relative to startup and takes the place of end_time.
type AuctionSection struct {
	core.Config `yaml:",inline"`
	Duration    time.Duration `yaml:"duration"`
}

// GenesisBalance seeds the in-enclave value book.
type GenesisBalance struct {
	Account core.Identity `yaml:"account"`
	Balance string        `yaml:"balance"`
}

// Settings are the process settings read from the environment.
type Settings struct {
	ConfigPath         string
	Listen             string
	JournalPath        string
	MaxWorkers         int
	AllowLocalAttester bool
	LocalRootPEMPath   string
}

func settingsFromEnv() (Settings, error) {
	maxWorkers, err := getRequiredEnvInt("ENCLAVE_MAX_WORKERS")
	if err != nil {
		return Settings{}, fmt.Errorf("failed to get max workers config: %w", err)
	}
	if maxWorkers <= 0 {
		return Settings{}, fmt.Errorf("ENCLAVE_MAX_WORKERS must be positive, got %d", maxWorkers)
	}

	configPath := os.Getenv("ESCROW_CONFIG")
	if configPath == "" {
		return Settings{}, errors.New("required environment variable ESCROW_CONFIG is not set")
	}

	allowLocal, err := getEnvBool("ESCROW_LOCAL_ATTESTER", false)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		ConfigPath:         configPath,
		Listen:             getEnvDefault("ESCROW_LISTEN", defaultListen),
		JournalPath:        getEnvDefault("ESCROW_JOURNAL", journal.MemoryPath),
		MaxWorkers:         maxWorkers,
		AllowLocalAttester: allowLocal,
		LocalRootPEMPath:   os.Getenv("ESCROW_LOCAL_ROOT_PEM"),
	}, nil
}

// LoadAuctionFile reads and validates the auction definition at path. now
// anchors a relative duration.
func LoadAuctionFile(path string, now time.Time) (*AuctionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auction config: %w", err)
	}
	return parseAuctionFile(data, now)
}

func parseAuctionFile(data []byte, now time.Time) (*AuctionFile, error) {
	var f AuctionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse auction config: %w", err)
	}

	if f.Auction.Duration < 0 {
		return nil, fmt.Errorf("invalid negative auction duration %s", f.Auction.Duration)
	}
	if f.Auction.Duration > 0 {
		if !f.Auction.EndTime.IsZero() {
			return nil, errors.New("auction config sets both end_time and duration")
		}
		f.Auction.EndTime = now.Add(f.Auction.Duration)
	}
	if f.Auction.ID == "" {
		f.Auction.ID = uuid.NewString()
	}
	if f.EscrowAccount.IsZero() {
		f.EscrowAccount = defaultEscrowAccount
	}
	for _, g := range f.Genesis {
		if _, err := g.Amount(); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// Amount parses the genesis balance.
func (g GenesisBalance) Amount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(g.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid genesis balance %q for %s: %w", g.Balance, g.Account, err)
	}
	return amount, nil
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	slog.Info("Using environment setting", "key", key, "value", intValue)
	return intValue, nil
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %s (must be a boolean)", key, value)
	}
	return b, nil
}
