package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/truthstamp/internal/claim"
	"github.com/Klingon-tech/truthstamp/internal/engine"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/internal/rpc"
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Submit and inspect claims",
}

var claimSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a claim for verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		from, _ := f.GetString("from")
		submitter, err := parseAddress(from)
		if err != nil {
			return err
		}
		feeStr, _ := f.GetString("fee")
		fee, err := parseOptionalAmount(feeStr)
		if err != nil {
			return err
		}
		text, _ := f.GetString("text")
		category, _ := f.GetString("category")
		sources, _ := f.GetStringSlice("source")

		var c claim.Claim
		err = call(cmd, "claim_submit", rpc.ClaimSubmitParam{
			Submitter: submitter,
			Text:      text,
			Category:  category,
			Sources:   sources,
			Fee:       fee,
		}, &c)
		if err != nil {
			return err
		}
		return render(c, func() {
			fmt.Printf("Claim %d submitted (fee %s TST)\n", c.ID, formatAmount(c.Fee))
		})
	},
}

var claimGetCmd = &cobra.Command{
	Use:   "get <claim-id>",
	Short: "Show a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var view engine.ClaimView
		if err := call(cmd, "claim_get", rpc.ClaimIDParam{ClaimID: id}, &view); err != nil {
			return err
		}
		return render(view, func() {
			if !view.Found {
				fmt.Printf("Claim %d not found\n", id)
				return
			}
			printClaim(view.Claim)
		})
	},
}

var claimCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of claims",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var res rpc.CountResult
		if err := call(cmd, "claim_count", nil, &res); err != nil {
			return err
		}
		return render(res, func() { fmt.Println(res.Count) })
	},
}

var claimListCmd = &cobra.Command{
	Use:   "list",
	Short: "List claims by id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetUint64("start")
		limit, _ := cmd.Flags().GetInt("limit")
		var res rpc.ListResult[*claim.Claim]
		if err := call(cmd, "claim_list", rpc.ClaimListParam{Start: start, Limit: limit}, &res); err != nil {
			return err
		}
		return render(res, func() {
			if len(res.Items) == 0 {
				fmt.Println("No claims")
				return
			}
			for _, c := range res.Items {
				fmt.Printf("%6d  %-13s  %3d reviews  %s\n", c.ID, c.Status, c.ReviewCount, truncate(c.Text, 60))
			}
		})
	},
}

var claimReviewsCmd = &cobra.Command{
	Use:   "reviews <claim-id>",
	Short: "List the reviews of a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var res rpc.ListResult[*review.Review]
		if err := call(cmd, "claim_reviews", rpc.ClaimIDParam{ClaimID: id}, &res); err != nil {
			return err
		}
		return render(res, func() { printReviews(res.Items) })
	},
}

func init() {
	f := claimSubmitCmd.Flags()
	f.String("from", "", "submitter address")
	f.String("text", "", "claim text")
	f.String("category", "", "claim category")
	f.StringSlice("source", nil, "supporting source (repeatable)")
	f.String("fee", "", "fee in TST (default: the minimum claim fee)")
	_ = claimSubmitCmd.MarkFlagRequired("from")
	_ = claimSubmitCmd.MarkFlagRequired("text")

	claimListCmd.Flags().Uint64("start", 1, "first claim id")
	claimListCmd.Flags().Int("limit", 20, "maximum number of claims")

	claimCmd.AddCommand(claimSubmitCmd, claimGetCmd, claimCountCmd, claimListCmd, claimReviewsCmd)
}

func printClaim(c *claim.Claim) {
	fmt.Printf("Claim:      %d\n", c.ID)
	fmt.Printf("Status:     %s\n", c.Status)
	fmt.Printf("Submitter:  %s\n", c.Submitter)
	fmt.Printf("Category:   %s\n", c.Category)
	fmt.Printf("Text:       %s\n", c.Text)
	for _, s := range c.Sources {
		fmt.Printf("Source:     %s\n", s)
	}
	fmt.Printf("Fee:        %s TST\n", formatAmount(c.Fee))
	fmt.Printf("Stake pool: %s TST\n", formatAmount(c.StakePool))
	fmt.Printf("Reviews:    %d\n", c.ReviewCount)
	fmt.Printf("Created:    %s\n", formatTime(c.CreatedAt))
	if !c.FinalizedAt.IsZero() {
		fmt.Printf("Finalized:  %s\n", formatTime(c.FinalizedAt))
	}
	if !c.ResolvedAt.IsZero() {
		fmt.Printf("Resolved:   %s\n", formatTime(c.ResolvedAt))
	}
}

func printReviews(reviews []*review.Review) {
	if len(reviews) == 0 {
		fmt.Println("No reviews")
		return
	}
	for _, r := range reviews {
		fmt.Printf("%6d  claim %-6d  %-5s  %3d%%  %10s TST  %s\n",
			r.ID, r.ClaimID, r.Verdict, r.Confidence, formatAmount(r.Stake), r.Expert)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
