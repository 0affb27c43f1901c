package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/zkvm/snark"
)

var setupSolidityPath string

func init() {
	setupCmd.Flags().StringVar(&setupSolidityPath, "solidity", "", "write the Solidity verifier contract to this path")
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Compile the claim circuit, run a local key setup and store the keys in the artifacts cache",
	Long: `Compile the claim circuit, run a local key setup and store the keys in the
artifacts cache. The keys are generated locally, so they are only meant for
development and testing. The printed hashes pin the keys in the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := conf.Kind()
		if err != nil {
			return err
		}
		log.Infow("running circuit setup", "kind", kind.String())
		keys, err := snark.Setup(kind)
		if err != nil {
			return err
		}
		artifacts, err := keys.Artifacts()
		if err != nil {
			return err
		}
		if err := artifacts.StoreAll(); err != nil {
			return err
		}
		if setupSolidityPath != "" {
			f, err := os.Create(setupSolidityPath)
			if err != nil {
				return fmt.Errorf("failed to create verifier contract file: %w", err)
			}
			defer f.Close()
			if err := keys.ExportSolidity(f); err != nil {
				return fmt.Errorf("failed to export verifier contract: %w", err)
			}
			log.Infow("verifier contract written", "path", setupSolidityPath)
		}
		circuit, pk, vk := artifacts.Hashes()
		return printJSON(map[string]string{
			"receiptKind":        kind.String(),
			"circuitHash":        circuit.Hex(),
			"provingKeyHash":     pk.Hex(),
			"verifyingKeyHash":   vk.Hex(),
			"verifierParameters": keys.VerifierParameters().String(),
		})
	},
}
