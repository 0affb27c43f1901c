package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/seal"
	"github.com/vocdoni/zk-disclosure/service"
	"github.com/vocdoni/zk-disclosure/storage"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/verifier"
)

var (
	inspectVerify    bool
	inspectProgramID string
)

func init() {
	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "verify the seal with the configured verifier")
	inspectCmd.Flags().StringVar(&inspectProgramID, "program-id", "",
		"program id the seal must attest, defaults to the configured program (implies --verify)")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [dir]",
	Short: "Decode, and optionally verify, the artifact files of a proven vote",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := conf.OutputDir
		if len(args) > 0 {
			dir = args[0]
		}
		files, err := storage.ReadArtifacts(dir)
		if err != nil {
			return err
		}
		record, payload, err := disclosure.DecodeJournal(files.Journal)
		if err != nil {
			return err
		}
		if !bytes.Equal(payload, files.JournalABI) {
			return fmt.Errorf("%w: %s does not match the journal", types.ErrStructural, storage.JournalABIFile)
		}
		out := map[string]any{
			"record":  record,
			"imageId": files.ImageID.String(),
		}
		if len(files.Seal) > 0 {
			selector, err := seal.Selector(files.Seal)
			if err != nil {
				return err
			}
			out["selector"] = types.HexBytes(selector[:]).Hex()
		}
		if !inspectVerify && inspectProgramID == "" {
			return printJSON(out)
		}

		if len(files.Seal) == 0 {
			return fmt.Errorf("%w: no seal to verify in %s", types.ErrReceiptVerification, dir)
		}
		if err := loadConfig(); err != nil {
			return err
		}
		pipeline, err := service.NewPipeline(conf)
		if err != nil {
			return err
		}
		v, ok := pipeline.Engine().(verifier.SealVerifier)
		if !ok {
			return fmt.Errorf("engine %T cannot verify seals", pipeline.Engine())
		}
		programID := pipeline.ProgramID()
		if inspectProgramID != "" {
			if programID, err = types.DigestFromHex(inspectProgramID); err != nil {
				return fmt.Errorf("invalid program id: %w", err)
			}
		}
		if files.ImageID != programID {
			return fmt.Errorf("%w: artifacts of program %s, expected %s",
				types.ErrReceiptVerification, files.ImageID, programID)
		}
		verified, err := verifier.VerifySeal(v, files.Seal, files.Journal, programID)
		if err != nil {
			return err
		}
		if !verified.Equal(record) {
			return fmt.Errorf("%w: verified record does not match the journal", types.ErrReceiptVerification)
		}
		out["verified"] = true
		return printJSON(out)
	},
}
