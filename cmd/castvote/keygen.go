package main

import (
	"github.com/spf13/cobra"
	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/util"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a voter key pair and a random nullifier salt",
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := secp256k1.GenerateKey()
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"privateKey": secp256k1.EncodePrivateKey(priv),
			"publicKey":  secp256k1.EncodePublicKey(&priv.PublicKey),
			"salt":       util.RandomHex(16),
		})
	},
}
