package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"cratewalk/internal/checkpoint"
)

type planEntry struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Path        string   `json:"path"`
	Publishable bool     `json:"publishable"`
	Deps        []string `json:"workspace_deps,omitempty"`
}

type planDocument struct {
	WorkspaceRoot string      `json:"workspace_root"`
	Digest        string      `json:"digest"`
	Packages      []planEntry `json:"packages"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the computed publish order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, plan, err := ctx.loadPlan()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !asJSON {
				for _, pkg := range plan {
					fmt.Fprintf(out, "%s@%s\n", pkg.Name, pkg.Version)
				}
				return nil
			}

			doc := planDocument{
				WorkspaceRoot: ws.Root,
				Digest:        checkpoint.PlanDigest(plan),
				Packages:      make([]planEntry, 0, len(plan)),
			}
			for _, pkg := range plan {
				doc.Packages = append(doc.Packages, planEntry{
					Name:        pkg.Name,
					Version:     pkg.Version,
					Path:        relPath(ws.Root, pkg.Dir),
					Publishable: pkg.Publishable,
					Deps:        pkg.WorkspaceDeps,
				})
			}

			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(doc)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the plan as JSON")
	return cmd
}
