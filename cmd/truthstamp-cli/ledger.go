package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/truthstamp/internal/engine"
	"github.com/Klingon-tech/truthstamp/internal/rpc"
)

var insuranceCmd = &cobra.Command{
	Use:   "insurance",
	Short: "Show the insurance pool and its liabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var view engine.InsuranceView
		if err := call(cmd, "insurance_get", nil, &view); err != nil {
			return err
		}
		return render(view, func() {
			fmt.Printf("Balance:   %s TST\n", formatAmount(view.Balance))
			fmt.Printf("Deferred:  %s TST\n", formatAmount(view.TotalDeferred))
			fmt.Printf("Paid:      %s TST\n", formatAmount(view.TotalPaid))
			for _, l := range view.Liabilities {
				fmt.Printf("  owes %s TST to %s (claim %d, %s)\n",
					formatAmount(l.Outstanding()), l.Beneficiary, l.ClaimID, l.Reason)
			}
		})
	},
}

var settlementCmd = &cobra.Command{
	Use:   "settlement <claim-id>",
	Short: "Show the settlement journal of a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var view engine.SettlementView
		if err := call(cmd, "settlement_get", rpc.ClaimIDParam{ClaimID: id}, &view); err != nil {
			return err
		}
		return render(view, func() {
			if !view.Found {
				fmt.Printf("Claim %d has not been settled\n", id)
				return
			}
			for _, run := range view.Runs {
				fmt.Printf("Run %s revision %d at %s\n", run.ID, run.Revision, formatTime(run.SettledAt))
			}
			for _, e := range view.Entries {
				fmt.Printf("%5d  %-12s %12s TST  %s -> %s\n", e.Seq, e.Kind, formatAmount(e.Amount), e.From, e.To)
			}
			if view.Verified {
				fmt.Println("Journal hash chain verified")
			} else {
				fmt.Printf("Journal verification FAILED: %s\n", view.VerifyError)
			}
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show a wallet, free stake or raw ledger account balance",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stake, _ := cmd.Flags().GetBool("stake")
		account, _ := cmd.Flags().GetString("account")
		params := rpc.BalanceParam{Stake: stake, Account: account}
		if len(args) == 1 {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			params.Address = addr
		}
		var res rpc.BalanceResult
		if err := call(cmd, "ledger_balance", params, &res); err != nil {
			return err
		}
		return render(res, func() {
			fmt.Printf("%s TST\n", formatAmount(res.Balance))
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show node counters and protocol rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var info engine.Info
		if err := call(cmd, "engine_getInfo", nil, &info); err != nil {
			return err
		}
		return render(info, func() {
			r := info.Rules
			fmt.Printf("Claims:         %d\n", info.Claims)
			fmt.Printf("Reviews:        %d\n", info.Reviews)
			fmt.Printf("Experts:        %d\n", info.Experts)
			fmt.Printf("Insurance:      %s TST\n", formatAmount(info.Insurance))
			fmt.Printf("Deferred:       %s TST\n", formatAmount(info.Deferred))
			fmt.Printf("Genesis:        %s\n", info.GenesisHash)
			fmt.Printf("Quorum:         %d\n", r.Quorum)
			fmt.Printf("Claim fee:      %s TST\n", formatAmount(r.ClaimFee))
			fmt.Printf("Min stake:      %s / %s / %s TST\n",
				formatAmount(r.General.MinStake), formatAmount(r.Specialized.MinStake), formatAmount(r.Professional.MinStake))
			fmt.Printf("Appeal window:  %s\n", r.AppealWindow)
		})
	},
}

func init() {
	balanceCmd.Flags().Bool("stake", false, "show the free stake instead of the wallet")
	balanceCmd.Flags().String("account", "", "raw ledger account (e.g. insurance, claim:7)")
}
