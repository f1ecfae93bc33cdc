package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/truthstamp/internal/appeal"
	"github.com/Klingon-tech/truthstamp/internal/engine"
	"github.com/Klingon-tech/truthstamp/internal/rpc"
)

var appealCmd = &cobra.Command{
	Use:   "appeal",
	Short: "File, resolve and inspect appeals",
}

var appealFileCmd = &cobra.Command{
	Use:   "file",
	Short: "Appeal a finalized claim with new evidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		claimID, _ := f.GetUint64("claim")
		fromStr, _ := f.GetString("appellant")
		appellant, err := parseAddress(fromStr)
		if err != nil {
			return err
		}
		bondStr, _ := f.GetString("bond")
		bond, err := parseAmount(bondStr)
		if err != nil {
			return err
		}
		evidence, _ := f.GetString("evidence")

		var a appeal.Appeal
		err = call(cmd, "appeal_file", rpc.AppealFileParam{
			ClaimID:   claimID,
			Appellant: appellant,
			Evidence:  evidence,
			Bond:      bond,
		}, &a)
		if err != nil {
			return err
		}
		return render(a, func() {
			fmt.Printf("Appeal %s filed on claim %d\n", a.ID, a.ClaimID)
			fmt.Printf("Arbitration deadline: %s\n", formatTime(a.Deadline))
		})
	},
}

var appealResolveCmd = &cobra.Command{
	Use:   "resolve <claim-id> <upheld|overturned>",
	Short: "Record the arbitration outcome of an open appeal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var res engine.Resolution
		if err := call(cmd, "appeal_resolve", rpc.AppealResolveParam{ClaimID: id, Outcome: args[1]}, &res); err != nil {
			return err
		}
		return render(res, func() {
			fmt.Printf("Appeal on claim %d %s\n", id, res.Appeal.Outcome)
			if res.Appeal.Outcome == appeal.OutcomeOverturned {
				fmt.Printf("Payout:   %s TST\n", formatAmount(res.Appeal.Payout))
				if res.Appeal.Deferred > 0 {
					fmt.Printf("Deferred: %s TST\n", formatAmount(res.Appeal.Deferred))
				}
			}
		})
	},
}

var appealGetCmd = &cobra.Command{
	Use:   "get <claim-id>",
	Short: "Show the appeal filed against a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var view engine.AppealView
		if err := call(cmd, "appeal_get", rpc.ClaimIDParam{ClaimID: id}, &view); err != nil {
			return err
		}
		return render(view, func() {
			if !view.Found {
				fmt.Printf("No appeal on claim %d\n", id)
				return
			}
			a := view.Appeal
			fmt.Printf("Appeal:     %s\n", a.ID)
			fmt.Printf("Claim:      %d\n", a.ClaimID)
			fmt.Printf("Appellant:  %s\n", a.Appellant)
			fmt.Printf("Bond:       %s TST\n", formatAmount(a.Bond))
			fmt.Printf("Outcome:    %s\n", a.Outcome)
			fmt.Printf("Filed:      %s\n", formatTime(a.FiledAt))
			fmt.Printf("Deadline:   %s\n", formatTime(a.Deadline))
			fmt.Printf("Evidence:   %s\n", a.Evidence)
		})
	},
}

func init() {
	f := appealFileCmd.Flags()
	f.Uint64("claim", 0, "claim id")
	f.String("appellant", "", "appellant address")
	f.String("evidence", "", "new evidence")
	f.String("bond", "", "bond in TST")
	for _, name := range []string{"claim", "appellant", "evidence", "bond"} {
		_ = appealFileCmd.MarkFlagRequired(name)
	}

	appealCmd.AddCommand(appealFileCmd, appealResolveCmd, appealGetCmd)
}
