package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cratewalk/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent publish attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := cfg.HistoryPath()
			if err != nil {
				return err
			}

			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			attempts, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(attempts) == 0 {
				fmt.Fprintln(out, "No publish history recorded.")
				return nil
			}

			rows := make([][]string, 0, len(attempts))
			for _, a := range attempts {
				rows = append(rows, []string{
					a.StartedAt.Local().Format("2006-01-02 15:04"),
					a.Package,
					a.Version,
					a.Outcome,
					formatDuration(a.Duration),
					a.Detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"WHEN", "PACKAGE", "VERSION", "OUTCOME", "TOOK", "DETAIL"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum attempts to display")
	return cmd
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
