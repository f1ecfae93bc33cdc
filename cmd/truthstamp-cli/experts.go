package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/truthstamp/internal/engine"
	"github.com/Klingon-tech/truthstamp/internal/expert"
	"github.com/Klingon-tech/truthstamp/internal/review"
	"github.com/Klingon-tech/truthstamp/internal/rpc"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

var expertCmd = &cobra.Command{
	Use:   "expert",
	Short: "Register and inspect experts",
}

var expertRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register as an expert by staking",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		addrStr, _ := f.GetString("address")
		addr, err := parseAddress(addrStr)
		if err != nil {
			return err
		}
		tierStr, _ := f.GetString("tier")
		tier, err := types.ParseTier(tierStr)
		if err != nil {
			return err
		}
		stakeStr, _ := f.GetString("stake")
		stake, err := parseAmount(stakeStr)
		if err != nil {
			return err
		}
		name, _ := f.GetString("name")
		bio, _ := f.GetString("bio")
		categories, _ := f.GetStringSlice("category")

		var x expert.Expert
		err = call(cmd, "expert_register", rpc.ExpertRegisterParam{
			Address:    addr,
			Name:       name,
			Bio:        bio,
			Categories: categories,
			Tier:       tier,
			Stake:      stake,
		}, &x)
		if err != nil {
			return err
		}
		return render(x, func() {
			fmt.Printf("Registered %s as %s expert with %s TST staked\n", x.Address, x.Tier, formatAmount(x.StakedAmount))
		})
	},
}

var expertUnregisterCmd = &cobra.Command{
	Use:   "unregister <address>",
	Short: "Unregister and withdraw the stake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		var res rpc.UnregisterResult
		if err := call(cmd, "expert_unregister", rpc.AddressParam{Address: addr}, &res); err != nil {
			return err
		}
		return render(res, func() {
			fmt.Printf("Unregistered, %s TST returned\n", formatAmount(res.Refund))
		})
	},
}

var expertTopUpCmd = &cobra.Command{
	Use:   "topup <address> <amount>",
	Short: "Add stake to an expert",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		var x expert.Expert
		if err := call(cmd, "expert_topUp", rpc.TopUpParam{Address: addr, Amount: amount}, &x); err != nil {
			return err
		}
		return render(x, func() {
			fmt.Printf("Staked %s TST (%s)\n", formatAmount(x.StakedAmount), x.Status)
		})
	},
}

var expertGetCmd = &cobra.Command{
	Use:   "get <address>",
	Short: "Show an expert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		var view engine.ExpertView
		if err := call(cmd, "expert_get", rpc.AddressParam{Address: addr}, &view); err != nil {
			return err
		}
		return render(view, func() {
			if !view.Found {
				fmt.Printf("%s is not a registered expert\n", addr)
				return
			}
			x := view.Expert
			fmt.Printf("Address:     %s\n", x.Address)
			fmt.Printf("Name:        %s\n", x.Name)
			fmt.Printf("Tier:        %s\n", x.Tier)
			fmt.Printf("Status:      %s\n", x.Status)
			fmt.Printf("Staked:      %s TST\n", formatAmount(x.StakedAmount))
			fmt.Printf("Locked:      %s TST\n", formatAmount(x.LockedStake))
			fmt.Printf("Reputation:  %d (%s)\n", x.ReputationPoints, view.Level)
			fmt.Printf("Reviews:     %d (%d correct, %d%%)\n", x.TotalReviews, x.CorrectReviews, view.AccuracyPct)
			fmt.Printf("Earnings:    %s TST\n", formatAmount(x.TotalEarnings))
			fmt.Printf("Registered:  %s\n", formatTime(x.RegisteredAt))
		})
	},
}

var expertIsCmd = &cobra.Command{
	Use:   "is <address>",
	Short: "Check whether an address is a registered expert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		var res rpc.IsExpertResult
		if err := call(cmd, "expert_is", rpc.AddressParam{Address: addr}, &res); err != nil {
			return err
		}
		return render(res, func() { fmt.Println(res.IsExpert) })
	},
}

var expertReviewsCmd = &cobra.Command{
	Use:   "reviews <address>",
	Short: "List the reviews of an expert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		var res rpc.ListResult[*review.Review]
		if err := call(cmd, "expert_reviews", rpc.AddressParam{Address: addr}, &res); err != nil {
			return err
		}
		return render(res, func() { printReviews(res.Items) })
	},
}

func init() {
	f := expertRegisterCmd.Flags()
	f.String("address", "", "expert address")
	f.String("name", "", "display name")
	f.String("bio", "", "short biography")
	f.StringSlice("category", nil, "area of expertise (repeatable)")
	f.String("tier", "general", "tier: general, specialized or professional")
	f.String("stake", "", "stake in TST")
	_ = expertRegisterCmd.MarkFlagRequired("address")
	_ = expertRegisterCmd.MarkFlagRequired("stake")

	expertCmd.AddCommand(expertRegisterCmd, expertUnregisterCmd, expertTopUpCmd, expertGetCmd, expertIsCmd, expertReviewsCmd)
}
