package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/truthstamp/pkg/crypto"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage participant identities",
}

type identity struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key,omitempty"`
}

var identityNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a secp256k1 key and its address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		defer key.Zero()

		id := identity{
			Address:   key.Address().String(),
			PublicKey: fmt.Sprintf("%x", key.PublicKey()),
		}
		if out != "" {
			if err := os.WriteFile(out, []byte(key.Hex()+"\n"), 0600); err != nil {
				return fmt.Errorf("write key: %w", err)
			}
		} else {
			id.PrivateKey = key.Hex()
		}

		return render(id, func() {
			fmt.Printf("Address:     %s\n", id.Address)
			fmt.Printf("Public key:  %s\n", id.PublicKey)
			if out != "" {
				fmt.Printf("Private key written to %s\n", out)
			} else {
				fmt.Printf("Private key: %s\n", id.PrivateKey)
				fmt.Println("Store the private key safely; it is not saved anywhere.")
			}
		})
	},
}

var identityShowCmd = &cobra.Command{
	Use:   "show <key-file>",
	Short: "Show the address of a stored private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, err := crypto.PrivateKeyFromHex(strings.TrimSpace(string(data)))
		if err != nil {
			return err
		}
		defer key.Zero()

		id := identity{
			Address:   key.Address().String(),
			PublicKey: fmt.Sprintf("%x", key.PublicKey()),
		}
		return render(id, func() {
			fmt.Printf("Address:     %s\n", id.Address)
			fmt.Printf("Public key:  %s\n", id.PublicKey)
		})
	},
}

func init() {
	identityNewCmd.Flags().String("out", "", "write the private key (hex) to this file instead of printing it")
	identityCmd.AddCommand(identityNewCmd, identityShowCmd)
}
