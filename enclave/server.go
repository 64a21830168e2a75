package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveclient"
	"github.com/cloudx-io/openescrow/journal"
	"github.com/cloudx-io/openescrow/ledger"
)

const (
	readTimeout        = 30 * time.Second
	maxRequestBytes    = 1 << 20
	requestMaxAge      = 5 * time.Minute
	requestCleanupTick = 30 * time.Second
)

// EnclaveServer hosts one auction and serves the enclave protocol.
type EnclaveServer struct {
	host     *ledger.Host
	escrow   core.Identity
	guard    *RequestGuard
	journal  *journal.Store
	attester EnclaveAttester
}

// NewEnclaveServer creates the auction described by file on a fresh value
// book seeded with the genesis balances.
func NewEnclaveServer(file *AuctionFile, store *journal.Store, attester EnclaveAttester, clock ledger.Clock) (*EnclaveServer, error) {
	if store == nil {
		return nil, errors.New("journal is required")
	}

	book := ledger.New(file.EscrowAccount, clock)
	host, err := ledger.NewHost(file.Auction.Config, book)
	if err != nil {
		return nil, err
	}
	for _, g := range file.Genesis {
		amount, err := g.Amount()
		if err != nil {
			return nil, err
		}
		if err := host.Credit(g.Account, amount); err != nil {
			return nil, fmt.Errorf("failed to credit genesis balance of %s: %w", g.Account, err)
		}
	}

	return &EnclaveServer{
		host:     host,
		escrow:   file.EscrowAccount,
		guard:    NewRequestGuard(requestMaxAge, file.RequireIssuedTokens),
		journal:  store,
		attester: attester,
	}, nil
}

func listen(rawAddr string) (net.Listener, error) {
	addr, err := enclaveclient.ParseAddress(rawAddr)
	if err != nil {
		return nil, err
	}
	if addr.Network == "vsock" {
		l, err := vsock.Listen(addr.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return l, nil
	}
	l, err := net.Listen("tcp", addr.HostPort)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp listener: %w", err)
	}
	return l, nil
}

// Serve accepts connections on listener until ctx is done. At most maxWorkers
// connections are handled at once; a connection arriving when the pool is full
// is closed without a response.
func (s *EnclaveServer) Serve(ctx context.Context, listener net.Listener, maxWorkers int) error {
	s.guard.StartExpirationCleanup(ctx, requestCleanupTick)

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			slog.Error("Failed to close listener", "error", err)
		}
	}()

	semaphore := make(chan struct{}, maxWorkers)
	slog.Info("Worker pool initialized", "max_workers", maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to accept connection", "error", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(ctx, c)
			}(conn)
		default:
			slog.Warn("No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				slog.Error("Failed to close rejected connection", "error", err)
			}
		}
	}
}

func (s *EnclaveServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in handleConnection", "panic", r)
		}
		if err := conn.Close(); err != nil {
			slog.Error("Failed to close connection", "error", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(conn, maxRequestBytes)); err != nil {
		slog.Error("Failed to read request", "error", err)
		return
	}

	response := s.handleRequest(ctx, buf.Bytes())

	_ = conn.SetWriteDeadline(time.Now().Add(readTimeout))
	if err := json.NewEncoder(conn).Encode(response); err != nil {
		slog.Error("Failed to encode response", "type", response.Type, "error", err)
		return
	}
	slog.Debug("Response sent", "type", response.Type, "success", response.Success)
}

func run() error {
	settings, err := settingsFromEnv()
	if err != nil {
		return err
	}

	file, err := LoadAuctionFile(settings.ConfigPath, time.Now())
	if err != nil {
		return err
	}

	store, err := journal.Open(settings.JournalPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Journal opened", "path", settings.JournalPath)

	attester := selectAttester(settings.AllowLocalAttester, settings.LocalRootPEMPath)

	server, err := NewEnclaveServer(file, store, attester, ledger.SystemClock{})
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	cfg := file.Auction.Config
	slog.Info("Auction created", "auction_id", cfg.ID, "owner", cfg.Owner, "end_time", cfg.EndTime, "escrow_account", file.EscrowAccount)

	listener, err := listen(settings.Listen)
	if err != nil {
		return err
	}
	slog.Info("Escrow enclave listening", "address", settings.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, listener, settings.MaxWorkers)
}

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	})))

	if err := run(); err != nil {
		slog.Error("Escrow enclave stopped", "error", err)
		os.Exit(1)
	}
}
