package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"audioclean/internal/preflight"
	"audioclean/internal/services"
	"audioclean/internal/workflow"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, filesystems and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				results := m.Preflight(cmd.Context())
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					rows := make([][]string, 0, len(results))
					for _, r := range results {
						rows = append(rows, []string{r.Name, checkStatus(r), r.Detail})
					}
					fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, nil))
				}
				if failed := preflight.Failed(results); len(failed) > 0 {
					return services.Wrap(services.ErrConfiguration, "doctor", "preflight",
						fmt.Sprintf("%d check(s) failed", len(failed)), nil)
				}
				return nil
			})
		},
	}
}

func checkStatus(r preflight.Result) string {
	switch {
	case !r.Passed:
		return "fail"
	case r.Warning:
		return "warn"
	default:
		return "ok"
	}
}
