package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cratewalk/internal/checkpoint"
	"cratewalk/internal/history"
	"cratewalk/internal/publish"
	"cratewalk/internal/services/cargo"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var skipPublished bool
	var resume bool
	var token string
	var registry string
	var interval int

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish all workspace packages in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			ws, plan, err := ctx.loadPlan()
			if err != nil {
				return err
			}
			if len(plan) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No packages to publish.")
				return nil
			}

			if registry == "" {
				registry = cfg.Publish.Registry
			}
			if token == "" {
				token = cfg.Token()
			}
			if !cmd.Flags().Changed("publish-interval") {
				interval = cfg.Publish.IntervalSeconds
			}

			client := cargo.New(
				cargo.WithRegistry(registry),
				cargo.WithToken(token),
				cargo.WithLogger(logger),
			)

			opts := publish.Options{
				DryRun:        dryRun,
				SkipPublished: skipPublished,
				Resume:        resume,
				Interval:      time.Duration(interval) * time.Second,
			}
			extras := []publish.Option{
				publish.WithChecker(client),
				publish.WithLogger(logger),
			}

			if cfg.History.Enabled && !dryRun {
				path, err := cfg.HistoryPath()
				if err != nil {
					return err
				}
				journal, err := history.Open(path)
				if err != nil {
					logger.Warn("publish history unavailable", "error", err)
				} else {
					defer journal.Close()
					extras = append(extras, publish.WithJournal(journal))
				}
			}

			scheduler, err := publish.New(ws.Root, checkpoint.NewStore(ws.Root), client, opts, extras...)
			if err != nil {
				return err
			}

			result, err := scheduler.Run(cmd.Context(), plan)
			printPublishSummary(cmd, result, dryRun)
			if err != nil {
				if result != nil && result.Failed != "" && !dryRun {
					fmt.Fprintln(cmd.OutOrStdout(), "Publishing interrupted; checkpoint saved. Re-run with --resume to continue.")
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Verify without publishing; never touches the checkpoint")
	cmd.Flags().BoolVar(&skipPublished, "skip-published", false, "Query the registry and skip versions that already exist")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume from the previous session's checkpoint")
	cmd.Flags().StringVar(&token, "token", "", "Registry token (default: configured token environment variable)")
	cmd.Flags().StringVar(&registry, "registry", "", "Target registry (default: crates.io)")
	cmd.Flags().IntVar(&interval, "publish-interval", 0, "Seconds to wait between publishes")

	return cmd
}

func printPublishSummary(cmd *cobra.Command, result *publish.Result, dryRun bool) {
	if result == nil {
		return
	}
	out := cmd.OutOrStdout()

	if dryRun {
		fmt.Fprintf(out, "Dry run: %d of %d packages would be published.\n", len(result.WouldPublish), result.Planned)
		return
	}
	fmt.Fprintf(out, "Published %d of %d packages.\n", len(result.Published), result.Planned)
	if n := len(result.SkippedCompleted); n > 0 {
		fmt.Fprintf(out, "Skipped %d already completed in a previous session.\n", n)
	}
	if n := len(result.SkippedPublished); n > 0 {
		fmt.Fprintf(out, "Skipped %d already on the registry.\n", n)
	}
	if n := len(result.SkippedUnpublishable); n > 0 {
		fmt.Fprintf(out, "Skipped %d with publishing disabled.\n", n)
	}
	if result.Failed != "" {
		fmt.Fprintf(out, "Failed on %s.\n", result.Failed)
	}
}
