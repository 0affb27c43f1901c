package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zk-disclosure/guest"
)

var programIDCmd = &cobra.Command{
	Use:   "program-id",
	Short: "Print the program id for the configured public key and salt",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		pub, err := conf.VoterPublicKey()
		if err != nil {
			return err
		}
		g, err := guest.New(guest.Config{PublicKey: pub, Salt: []byte(conf.Salt)})
		if err != nil {
			return err
		}
		fmt.Println(g.ID().String())
		return nil
	},
}
