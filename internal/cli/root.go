// Package cli implements escrowctl, the command line client for bidders and
// auction owners.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/enclaveclient"
)

// Enclave sends one request to the enclave.
type Enclave interface {
	Do(ctx context.Context, req enclaveapi.EnclaveRequest) (*enclaveapi.EnclaveResponse, error)
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Address string
	Timeout time.Duration
	Format  string // "json" | "text"

	// dial connects to the enclave; tests replace it.
	dial func(addr string, timeout time.Duration) (Enclave, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func dialEnclave(addr string, timeout time.Duration) (Enclave, error) {
	c, err := enclaveclient.New(addr)
	if err != nil {
		return nil, err
	}
	return c.WithTimeout(timeout), nil
}

// NewRootCommand creates the root command for escrowctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{dial: dialEnclave})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Talk to an openescrow enclave",
		Long:          "escrowctl places bids, settles and inspects an auction held by an openescrow enclave.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	defaultAddr := os.Getenv("ESCROW_ENCLAVE")
	if defaultAddr == "" {
		defaultAddr = "tcp://127.0.0.1:5000"
	}
	cmd.PersistentFlags().StringVar(&opts.Address, "enclave", defaultAddr, "enclave address (vsock://CID:PORT or tcp://HOST:PORT)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", enclaveclient.DefaultTimeout, "request timeout")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	for _, sub := range newQueryCommands(opts) {
		cmd.AddCommand(sub)
	}
	for _, sub := range newCallCommands(opts) {
		cmd.AddCommand(sub)
	}
	return cmd
}

// send dials the enclave, sends req and prints the response. A response that
// reports failure is printed and returned as an error.
func send(cmd *cobra.Command, opts *RootOptions, req enclaveapi.EnclaveRequest) (*enclaveapi.EnclaveResponse, error) {
	enclave, err := opts.dial(opts.Address, opts.Timeout)
	if err != nil {
		return nil, err
	}
	resp, err := enclave.Do(cmd.Context(), req)
	if err != nil {
		return nil, err
	}
	if err := render(cmd.OutOrStdout(), opts.Format, resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, &ResponseError{Code: resp.ErrorCode, Message: resp.Message}
	}
	return resp, nil
}

// ResponseError is a request the enclave refused.
type ResponseError struct {
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
