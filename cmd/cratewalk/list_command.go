package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspace packages in publish order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, plan, err := ctx.loadPlan()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(plan))
			for _, pkg := range plan {
				publish := "yes"
				if !pkg.Publishable {
					publish = "no"
				}
				rows = append(rows, []string{
					pkg.Name,
					pkg.Version,
					relPath(ws.Root, pkg.Dir),
					publish,
					strings.Join(pkg.WorkspaceDeps, ", "),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"NAME", "VERSION", "PATH", "PUBLISH", "WORKSPACE DEPS"},
				rows,
			))
			return nil
		},
	}
}
