package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cloudx-io/openescrow/enclaveapi"
)

func render(w io.Writer, format string, resp *enclaveapi.EnclaveResponse) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return renderText(w, resp)
}

func renderText(w io.Writer, resp *enclaveapi.EnclaveResponse) error {
	if !resp.Success {
		_, err := fmt.Fprintf(w, "error (%s): %s\n", resp.ErrorCode, resp.Message)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if resp.Message != "" {
		fmt.Fprintf(tw, "%s\n", resp.Message)
	}

	if s := resp.Status; s != nil {
		fmt.Fprintf(tw, "auction\t%s\n", s.ID)
		fmt.Fprintf(tw, "phase\t%s\n", s.Phase)
		fmt.Fprintf(tw, "end time\t%s\n", s.EndTime.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(tw, "extension\t%s of %s\n", s.ExtensionUsed, s.ExtensionBudget)
		fmt.Fprintf(tw, "highest bid\t%s\t%s\n", s.HighestBid, s.HighestBidder)
		fmt.Fprintf(tw, "minimum next bid\t%s\n", s.MinimumNextBid)
		fmt.Fprintf(tw, "bidders\t%d\n", s.BidCount)
		fmt.Fprintf(tw, "total deposits\t%s\n", s.TotalDeposits)
		fmt.Fprintf(tw, "funds withdrawn\t%t\n", s.FundsWithdrawn)
	}
	if resp.BidCount != nil {
		fmt.Fprintf(tw, "bidders\t%d\n", *resp.BidCount)
	}
	for i, b := range resp.Bids {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, b.Bidder, b.Amount)
	}
	if win := resp.Winner; win != nil {
		if win.Bidder.IsZero() {
			fmt.Fprintf(tw, "no bids\n")
		} else {
			fmt.Fprintf(tw, "winner\t%s\t%s\n", win.Bidder, win.Amount)
		}
	}
	if b := resp.Balance; b != nil {
		fmt.Fprintf(tw, "account\t%s\n", b.Account)
		fmt.Fprintf(tw, "available\t%s\n", b.Available)
		fmt.Fprintf(tw, "deposit\t%s\n", b.Deposit)
		fmt.Fprintf(tw, "standing bid\t%s\n", b.StandingBid)
		fmt.Fprintf(tw, "excess\t%s\n", b.Excess)
	}
	for _, ev := range resp.Events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", ev.Seq, ev.Note.At.Format("15:04:05"), ev.Note.Kind, ev.Note.Account, ev.Note.Amount)
	}
	for _, n := range resp.Notifications {
		line := fmt.Sprintf("%s\t%s\t%s", n.Kind, n.Account, n.Amount)
		if n.Fee.IsPositive() {
			line += fmt.Sprintf("\tfee %s", n.Fee)
		}
		fmt.Fprintln(tw, line)
	}
	if r := resp.Refunds; r != nil {
		fmt.Fprintf(tw, "refunded\t%s\n", joinIDs(r.Refunded))
		fmt.Fprintf(tw, "failed\t%s\n", joinIDs(r.Failed))
		fmt.Fprintf(tw, "skipped\t%s\n", joinIDs(r.Skipped))
	}
	if info := resp.AuctionInfo; info != nil {
		fmt.Fprintf(tw, "auction\t%s\n", info.Config.ID)
		fmt.Fprintf(tw, "owner\t%s\n", info.Config.Owner)
		fmt.Fprintf(tw, "escrow account\t%s\n", info.EscrowAccount)
		fmt.Fprintf(tw, "config hash\t%s\n", info.ConfigHash)
		fmt.Fprintf(tw, "request token\t%s\n", info.RequestToken)
		fmt.Fprintf(tw, "attested\t%t\n", info.AttestationCOSEBase64 != "")
	}
	if rc := resp.Receipt; rc != nil && rc.UserData != nil {
		fmt.Fprintf(tw, "receipt\t%s\n", rc.UserData.ReceiptID)
		fmt.Fprintf(tw, "phase\t%s\n", rc.UserData.Phase)
		fmt.Fprintf(tw, "winner\t%s\t%s\n", rc.UserData.Winner, rc.UserData.WinningAmount)
		fmt.Fprintf(tw, "history hash\t%s\n", rc.UserData.HistoryHash)
	}
	return tw.Flush()
}

func joinIDs[T ~string](ids []T) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
