package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zk-disclosure/config"
	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
)

var conf = &config.Config{}

var rootCmd = &cobra.Command{
	Use:           "castvote",
	Short:         "Prove selective disclosures of signed vote payloads",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(cmd.Flags()); err != nil {
			return err
		}
		conf.Apply()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	conf.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(programIDCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(submitCmd)
}

// loadConfig completes the public key from the signing key if only the
// latter is set, and validates the configuration.
func loadConfig() error {
	if conf.PublicKey == "" && conf.PrivateKey != "" {
		priv, err := conf.SigningKey()
		if err != nil {
			return err
		}
		conf.PublicKey = secp256k1.EncodePublicKey(&priv.PublicKey)
	}
	return conf.Validate()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return nil
}
