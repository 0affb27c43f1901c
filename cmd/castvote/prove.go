package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zk-disclosure/castvote"
	"github.com/vocdoni/zk-disclosure/service"
)

var provePollID uint64

func init() {
	proveCmd.Flags().Uint64Var(&provePollID, "poll-id", 0, "poll the vote belongs to")
}

var proveCmd = &cobra.Command{
	Use:   "prove <payload file>",
	Short: "Sign and prove a vote payload, writing the artifact files to the output directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		key, err := conf.SigningKey()
		if err != nil {
			return err
		}
		message, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		pipeline, err := service.NewPipeline(conf)
		if err != nil {
			return err
		}
		res, err := castvote.Run(cmd.Context(), pipeline, key, &castvote.Vote{
			Message:   string(message),
			PollID:    provePollID,
			OutputDir: conf.OutputDir,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"record":    res.Record,
			"programId": pipeline.ProgramID().String(),
			"outputDir": conf.OutputDir,
		})
	},
}
