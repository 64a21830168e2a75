package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/cloudx-io/openescrow/enclaveclient"
	"github.com/cloudx-io/openescrow/gateway"
)

func main() {
	listen := flag.String("listen", envOr("GATEWAY_LISTEN", ":8080"), "HTTP listen address")
	enclaveAddr := flag.String("enclave", envOr("ENCLAVE_ADDR", "vsock://16:5000"), "enclave address (vsock://CID:PORT or tcp://HOST:PORT)")
	timeout := flag.Duration("timeout", enclaveclient.DefaultTimeout, "per-request enclave timeout")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})))

	client, err := enclaveclient.New(*enclaveAddr)
	if err != nil {
		slog.Error("Invalid enclave address", "address", *enclaveAddr, "error", err)
		os.Exit(1)
	}
	client = client.WithTimeout(*timeout)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           gateway.New(client).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      *timeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Gateway shutdown failed", "error", err)
		}
	}()

	slog.Info("Gateway listening", "address", *listen, "enclave", client.Address().String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Gateway stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
