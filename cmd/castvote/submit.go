package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zk-disclosure/api"
	"github.com/vocdoni/zk-disclosure/api/client"
	"github.com/vocdoni/zk-disclosure/castvote"
)

var (
	submitNode    string
	submitPollID  uint64
	submitTimeout time.Duration
)

func init() {
	submitCmd.Flags().StringVar(&submitNode, "node", "http://127.0.0.1:8080", "disclosure node API url")
	submitCmd.Flags().Uint64Var(&submitPollID, "poll-id", 0, "poll the vote belongs to")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 10*time.Minute, "time to wait for the proof")
}

var submitCmd = &cobra.Command{
	Use:   "submit <payload file>",
	Short: "Sign a vote payload and submit it to a disclosure node to be proven",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := conf.SigningKey()
		if err != nil {
			return err
		}
		message, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		signature, err := castvote.Sign(key, string(message))
		if err != nil {
			return err
		}
		cli, err := client.New(submitNode)
		if err != nil {
			return err
		}
		id, err := cli.SubmitVote(&api.Vote{Signature: signature, Message: string(message), PollID: submitPollID})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "vote queued as job %s\n", id)
		status, err := cli.WaitJob(id, submitTimeout)
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}
