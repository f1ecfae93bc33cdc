package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/rpcclient"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

const version = "0.1.0"

const defaultRPC = "http://127.0.0.1:7545"

var (
	cfgFile string
	client  *rpcclient.Client
)

var rootCmd = &cobra.Command{
	Use:   "truthstamp-cli",
	Short: "Command-line client for a truthstampd node",
	Long: `truthstamp-cli talks JSON-RPC to a truthstampd node.

Claims are submitted with a fee, reviewed by staked experts and finalized by
stake-weighted consensus once enough reviews are in. Amounts are accepted
and shown in TST with two decimals.

The node URL comes from --rpc, the TRUTHSTAMP_RPC environment variable or
the "rpc" key of the config file, in that order.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("network") == string(config.Testnet) {
			types.SetAddressHRP(types.TestnetHRP)
		} else {
			types.SetAddressHRP(types.MainnetHRP)
		}
		client = rpcclient.NewWithTimeout(viper.GetString("rpc"), viper.GetDuration("timeout"))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("truthstamp-cli v%s\n", version)
	},
}

// Execute runs the root command. An interrupt cancels the in-flight call.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.truthstamp/cli.yaml)")
	pf.String("rpc", defaultRPC, "node RPC URL")
	pf.String("network", string(config.Mainnet), "network for address display (mainnet or testnet)")
	pf.Duration("timeout", 10*time.Second, "RPC request timeout")
	pf.Bool("json", false, "print raw JSON results")

	for _, name := range []string{"rpc", "network", "timeout", "json"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.AddCommand(versionCmd, claimCmd, expertCmd, reviewCmd, consensusCmd, appealCmd,
		insuranceCmd, settlementCmd, balanceCmd, infoCmd, identityCmd)
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.truthstamp")
		viper.SetConfigType("yaml")
		viper.SetConfigName("cli")
	}

	// TRUTHSTAMP_RPC, TRUTHSTAMP_NETWORK, ...
	viper.SetEnvPrefix("TRUTHSTAMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// jsonOutput reports whether results are printed as JSON: on request, or
// when stdout is not a terminal.
func jsonOutput() bool {
	return viper.GetBool("json") || !term.IsTerminal(int(os.Stdout.Fd()))
}

// render prints v as indented JSON or through human.
func render(v interface{}, human func()) error {
	if jsonOutput() || human == nil {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	human()
	return nil
}

// call invokes method with the command's context.
func call(cmd *cobra.Command, method string, params, result interface{}) error {
	return client.CallContext(cmd.Context(), method, params, result)
}
