package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or discard an interrupted run",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Describe the checkpointed run, if any",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, e, err := openService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		defer svc.Close()

		st, err := svc.Status(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]any{
				"interrupted":      st.Interrupted,
				"checkpoint_error": st.CheckpointError,
			})
		}
		printCheckpoint(st)
		return nil
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the checkpoint and mark its run abandoned",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, e, err := openService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		defer svc.Close()

		if err := svc.AbandonCheckpoint(); err != nil {
			return err
		}
		printStatus("✓", "Checkpoint discarded", color.FgGreen)
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)
}
