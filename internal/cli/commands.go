package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

type pageFlags struct {
	offset int
	limit  int
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.offset, "offset", 0, "first entry to return")
	cmd.Flags().IntVar(&p.limit, "limit", 0, "number of entries (enclave default when 0)")
}

func newQueryCommands(opts *RootOptions) []*cobra.Command {
	simple := func(use, short, typ string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := send(cmd, opts, enclaveapi.EnclaveRequest{Type: typ})
				return err
			},
		}
	}

	var bidsPage pageFlags
	bids := &cobra.Command{
		Use:   "bids",
		Short: "List the bid history in first-bid order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(cmd, opts, enclaveapi.EnclaveRequest{
				Type:   enclaveapi.TypeBidHistory,
				Offset: bidsPage.offset,
				Limit:  bidsPage.limit,
			})
			return err
		},
	}
	bidsPage.register(bids)

	balance := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account's balance, deposit, standing bid and excess",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(cmd, opts, enclaveapi.EnclaveRequest{
				Type:    enclaveapi.TypeBalance,
				Account: core.Identity(args[0]),
			})
			return err
		},
	}

	var (
		eventsPage    pageFlags
		eventsAccount string
	)
	events := &cobra.Command{
		Use:   "events",
		Short: "List journaled notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(cmd, opts, enclaveapi.EnclaveRequest{
				Type:    enclaveapi.TypeEvents,
				Account: core.Identity(eventsAccount),
				Offset:  eventsPage.offset,
				Limit:   eventsPage.limit,
			})
			return err
		},
	}
	eventsPage.register(events)
	events.Flags().StringVar(&eventsAccount, "account", "", "only events concerning this account")

	var receiptOut string
	receipt := &cobra.Command{
		Use:   "receipt",
		Short: "Fetch an attested settlement receipt",
		Long: `Fetch an attested settlement receipt.

With --out the receipt is also written to a file as JSON, ready for
receipt-validator --receipt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(cmd, opts, enclaveapi.EnclaveRequest{Type: enclaveapi.TypeReceipt})
			if err != nil || receiptOut == "" {
				return err
			}
			data, err := json.MarshalIndent(resp.Receipt, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode receipt: %w", err)
			}
			if err := os.WriteFile(receiptOut, data, 0o644); err != nil {
				return fmt.Errorf("failed to write receipt: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "receipt written to %s\n", receiptOut)
			return nil
		},
	}
	receipt.Flags().StringVarP(&receiptOut, "out", "o", "", "write the receipt JSON to this file")

	return []*cobra.Command{
		simple("ping", "Check that the enclave answers", enclaveapi.TypePing),
		simple("info", "Show the auction terms and config attestation", enclaveapi.TypeAuctionInfo),
		simple("status", "Show the auction status", enclaveapi.TypeStatus),
		simple("count", "Show the number of distinct bidders", enclaveapi.TypeBidCount),
		simple("winner", "Show the leader, or the winner once ended", enclaveapi.TypeWinner),
		bids,
		balance,
		events,
		receipt,
	}
}

type callFlags struct {
	requestID string
}

func newCallCommands(opts *RootOptions) []*cobra.Command {
	call := func(use, short, typ string, withAmount bool) *cobra.Command {
		var flags callFlags
		args := cobra.ExactArgs(1)
		if withAmount {
			args = cobra.ExactArgs(2)
		}
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				req := enclaveapi.EnclaveRequest{
					Type:      typ,
					RequestID: flags.requestID,
					Caller:    core.Identity(args[0]),
				}
				if withAmount {
					amount, err := decimal.NewFromString(args[1])
					if err != nil {
						return fmt.Errorf("invalid amount %q: %w", args[1], err)
					}
					req.Amount = &amount
				}
				_, err := send(cmd, opts, req)
				return err
			},
		}
		cmd.Flags().StringVar(&flags.requestID, "request-id", "", "request id (a fresh UUID when empty)")
		return cmd
	}

	var (
		batchPage  pageFlags
		batchFlags callFlags
	)
	refundBatch := &cobra.Command{
		Use:   "refund-batch <owner>",
		Short: "Refund every eligible bidder in one page of the bid history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(cmd, opts, enclaveapi.EnclaveRequest{
				Type:      enclaveapi.TypeRefundBatch,
				RequestID: batchFlags.requestID,
				Caller:    core.Identity(args[0]),
				Offset:    batchPage.offset,
				Limit:     batchPage.limit,
			})
			return err
		},
	}
	batchPage.register(refundBatch)
	refundBatch.Flags().StringVar(&batchFlags.requestID, "request-id", "", "request id (a fresh UUID when empty)")

	return []*cobra.Command{
		call("bid <caller> <amount>", "Raise caller's standing bid by amount", enclaveapi.TypePlaceBid, true),
		call("deposit <caller> <amount>", "Add amount to caller's escrow without bidding", enclaveapi.TypeDeposit, true),
		call("withdraw <caller>", "Withdraw caller's deposit above their standing bid", enclaveapi.TypeWithdrawExcess, false),
		call("end <owner>", "End the auction before its deadline", enclaveapi.TypeEndEarly, false),
		call("cancel <owner>", "Cancel an auction that has no bids", enclaveapi.TypeCancel, false),
		call("claim <owner>", "Pay the winning bid to the owner", enclaveapi.TypeClaimWinnings, false),
		call("refund <caller>", "Refund caller's deposit minus the refund fee", enclaveapi.TypeRefund, false),
		call("cancel-withdraw <caller>", "Withdraw caller's full deposit after a cancellation", enclaveapi.TypeCancellationWithdraw, false),
		call("sweep <owner>", "Move residual escrow to the owner", enclaveapi.TypeEmergencySweep, false),
		refundBatch,
	}
}
