package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cratewalk/internal/checkpoint"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear the publish checkpoint",
	}
	cmd.AddCommand(newCheckpointShowCommand(ctx))
	cmd.AddCommand(newCheckpointClearCommand(ctx))
	return cmd
}

func newCheckpointShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current publish checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := ctx.resolveRoot()
			if err != nil {
				return err
			}

			store := checkpoint.NewStore(root)
			cp, err := store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cp == nil {
				fmt.Fprintln(out, "No checkpoint present.")
				return nil
			}

			fmt.Fprintf(out, "Checkpoint: %s\n", store.Path())
			fmt.Fprintf(out, "Session:    %s\n", cp.SessionID)
			fmt.Fprintf(out, "Updated:    %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "Plan:       %s\n", cp.PlanDigest)
			fmt.Fprintf(out, "Completed:  %d packages\n", len(cp.Completed))
			for _, name := range cp.Completed {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			return nil
		},
	}
}

func newCheckpointClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the publish checkpoint so the next run starts fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := ctx.resolveRoot()
			if err != nil {
				return err
			}

			store := checkpoint.NewStore(root)
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Checkpoint cleared.")
			return nil
		},
	}
}
