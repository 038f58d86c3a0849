package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var workspaceFlag string
	var configFlag string
	var logLevelFlag string
	var logFormatFlag string

	ctx := newCommandContext(&workspaceFlag, &configFlag, &logLevelFlag, &logFormatFlag)

	rootCmd := &cobra.Command{
		Use:           "cratewalk",
		Short:         "Publish Cargo workspace packages in dependency order",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkspaceInfo(cmd, ctx)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace-root", "w", "", "Workspace root directory (default: search upward from the current directory)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newPublishCommand(ctx))
	rootCmd.AddCommand(newCheckpointCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}

// runWorkspaceInfo prints a workspace summary with the computed publish
// order.
func runWorkspaceInfo(cmd *cobra.Command, ctx *commandContext) error {
	ws, plan, err := ctx.loadPlan()
	if err != nil {
		return err
	}

	publishable := 0
	for _, pkg := range plan {
		if pkg.Publishable {
			publishable++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workspace root: %s\n", ws.Root)
	fmt.Fprintf(out, "Packages: %d (%d publishable)\n", len(plan), publishable)
	if len(plan) == 0 {
		return nil
	}

	fmt.Fprintln(out, "\nPublish order:")
	for i, pkg := range plan {
		marker := ""
		if !pkg.Publishable {
			marker = "  (publish disabled)"
		}
		fmt.Fprintf(out, "%3d. %s v%s%s\n", i+1, pkg.Name, pkg.Version, marker)
	}
	return nil
}

// relPath renders dir relative to root for display, falling back to the
// absolute path.
func relPath(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return dir
	}
	return rel
}
