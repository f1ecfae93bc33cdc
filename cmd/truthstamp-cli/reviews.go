package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/truthstamp/internal/consensus"
	"github.com/Klingon-tech/truthstamp/internal/engine"
	"github.com/Klingon-tech/truthstamp/internal/rpc"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit and inspect reviews",
}

var reviewSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a staked verdict on a claim",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		claimID, _ := f.GetUint64("claim")
		expStr, _ := f.GetString("expert")
		exp, err := parseAddress(expStr)
		if err != nil {
			return err
		}
		verdictStr, _ := f.GetString("verdict")
		verdict, err := types.ParseVerdict(verdictStr)
		if err != nil {
			return err
		}
		stakeStr, _ := f.GetString("stake")
		stake, err := parseAmount(stakeStr)
		if err != nil {
			return err
		}
		confidence, _ := f.GetUint8("confidence")
		reasoning, _ := f.GetString("reasoning")

		var res engine.ReviewResult
		err = call(cmd, "review_submit", rpc.ReviewSubmitParam{
			ClaimID:    claimID,
			Expert:     exp,
			Verdict:    verdict,
			Reasoning:  reasoning,
			Confidence: confidence,
			Stake:      stake,
		}, &res)
		if err != nil {
			return err
		}
		return render(res, func() {
			fmt.Printf("Review %d recorded on claim %d\n", res.Review.ID, res.Review.ClaimID)
			if res.Finalized && res.Consensus != nil {
				fmt.Printf("Claim finalized: %s at %d%% confidence\n", res.Consensus.Verdict, res.Consensus.ConfidencePct)
			}
		})
	},
}

var reviewGetCmd = &cobra.Command{
	Use:   "get <review-id>",
	Short: "Show a review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var view engine.ReviewView
		if err := call(cmd, "review_get", rpc.ReviewIDParam{ReviewID: id}, &view); err != nil {
			return err
		}
		return render(view, func() {
			if !view.Found {
				fmt.Printf("Review %d not found\n", id)
				return
			}
			r := view.Review
			fmt.Printf("Review:      %d\n", r.ID)
			fmt.Printf("Claim:       %d\n", r.ClaimID)
			fmt.Printf("Expert:      %s (%s)\n", r.Expert, r.Tier)
			fmt.Printf("Verdict:     %s\n", r.Verdict)
			fmt.Printf("Confidence:  %d%%\n", r.Confidence)
			fmt.Printf("Stake:       %s TST\n", formatAmount(r.Stake))
			fmt.Printf("Rewarded:    %v\n", r.Rewarded)
			if r.Reasoning != "" {
				fmt.Printf("Reasoning:   %s\n", r.Reasoning)
			}
		})
	},
}

var consensusCmd = &cobra.Command{
	Use:   "consensus <claim-id>",
	Short: "Show the consensus result of a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var view engine.ConsensusView
		if err := call(cmd, "consensus_get", rpc.ClaimIDParam{ClaimID: id}, &view); err != nil {
			return err
		}
		return render(view, func() {
			if !view.Found {
				fmt.Printf("Claim %d has no consensus yet\n", id)
				return
			}
			printConsensus(view.Result)
			if len(view.History) > 0 {
				fmt.Printf("Superseded results: %d\n", len(view.History))
			}
		})
	},
}

func init() {
	f := reviewSubmitCmd.Flags()
	f.Uint64("claim", 0, "claim id")
	f.String("expert", "", "reviewing expert address")
	f.String("verdict", "", "verdict: true or false")
	f.Uint8("confidence", 0, "confidence 0-100")
	f.String("stake", "", "stake in TST")
	f.String("reasoning", "", "reasoning for the verdict")
	for _, name := range []string{"claim", "expert", "verdict", "confidence", "stake"} {
		_ = reviewSubmitCmd.MarkFlagRequired(name)
	}

	reviewCmd.AddCommand(reviewSubmitCmd, reviewGetCmd)
}

func printConsensus(r *consensus.Result) {
	fmt.Printf("Claim:       %d\n", r.ClaimID)
	fmt.Printf("Verdict:     %s\n", r.Verdict)
	fmt.Printf("Confidence:  %d%%\n", r.ConfidencePct)
	fmt.Printf("True weight: %s\n", r.TotalTrue)
	fmt.Printf("False weight: %s\n", r.TotalFalse)
	fmt.Printf("Reviews:     %d\n", r.ReviewCount)
	fmt.Printf("Revision:    %d\n", r.Revision)
	if r.Overturned {
		fmt.Println("Overturned on appeal")
	}
	fmt.Printf("Finalized:   %s\n", formatTime(r.FinalizedAt))
}
