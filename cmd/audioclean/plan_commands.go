package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audioclean/internal/applier"
	"audioclean/internal/config"
	"audioclean/internal/planner"
	"audioclean/internal/report"
	"audioclean/internal/services"
	"audioclean/internal/undo"
	"audioclean/internal/workflow"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var formatFlag string
	var overrides string

	cmd := &cobra.Command{
		Use:   "plan [roots...]",
		Short: "Scan and write a plan of proposed changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := planner.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			scanOpts, err := scanOptions(args)
			if err != nil {
				return err
			}
			opts := workflow.PlanOptions{ScanOptions: scanOpts}
			if strings.TrimSpace(overrides) != "" {
				if opts.OverridesPath, err = config.ExpandPath(overrides); err != nil {
					return fmt.Errorf("resolve overrides path: %w", err)
				}
			}
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				progress, done := scanProgress(cmd.ErrOrStderr())
				opts.Progress = progress
				run, err := m.Plan(cmd.Context(), opts)
				done()
				if err != nil {
					return err
				}
				if strings.TrimSpace(outPath) == "" {
					data, err := planner.Encode(run.Plan, format)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				target, err := config.ExpandPath(outPath)
				if err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
				if err := planner.WriteFile(target, run.Plan, format); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"plan_id": run.Plan.ID, "path": target, "summary": run.Plan.Summary})
				}
				printPlanSummary(cmd, run.Plan)
				fmt.Fprintf(cmd.OutOrStdout(), "Plan %s written to %s\n", run.Plan.ID, target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the plan to this file instead of stdout")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", string(planner.FormatJSON), "Plan format: json or yaml")
	cmd.Flags().StringVar(&overrides, "overrides", "", "YAML file of per-path tag overrides")
	return cmd
}

func printPlanSummary(cmd *cobra.Command, plan *planner.Plan) {
	out := cmd.OutOrStdout()
	kinds := make([]string, 0, len(plan.Summary.ByKind))
	for kind := range plan.Summary.ByKind {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		rows = append(rows, []string{kind, strconv.Itoa(plan.Summary.ByKind[planner.Kind(kind)])})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Action", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	s := plan.Summary
	fmt.Fprintf(out, "%d duplicate group(s), %s reclaimable; %d need review; %d conflict(s)\n",
		s.DuplicateGroups, report.Bytes(s.ReclaimableBytes), s.NeedsReview, s.Conflicts)
	for _, c := range plan.Conflicts {
		fmt.Fprintf(out, "  conflict: %v\n", c)
	}
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var parallel bool

	cmd := &cobra.Command{
		Use:   "apply <plan>",
		Short: "Execute a plan file and journal every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve plan path: %w", err)
			}
			opts := workflow.ApplyOptions{DryRun: dryRun}
			if cmd.Flags().Changed("parallel") {
				opts.Parallel = &parallel
			}
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				result, applyErr := m.ApplyFile(cmd.Context(), path, opts)
				if result == nil {
					return applyErr
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, result); err != nil {
						return err
					}
				} else {
					printApplyResult(cmd, result)
				}
				if applyErr != nil {
					if result.Outcome == services.OutcomePartial {
						return fmt.Errorf("%w (%w)", applyErr, errPartial)
					}
					return applyErr
				}
				return outcomeError(result.Outcome)
			})
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Describe the actions without executing them")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Run independent actions concurrently")
	return cmd
}

func printApplyResult(cmd *cobra.Command, result *applier.Result) {
	out := cmd.OutOrStdout()
	if len(result.Actions) > 0 {
		rows := make([][]string, 0, len(result.Actions))
		for _, a := range result.Actions {
			status := string(a.Status)
			if a.Error != "" {
				status += ": " + a.Error
			}
			rows = append(rows, []string{strconv.Itoa(a.Ordinal), string(a.Kind), a.Source, a.Destination, status})
		}
		headers := []string{"#", "Action", "Source", "Destination", "Status"}
		aligns := []columnAlignment{alignRight}
		fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
	}
	switch {
	case result.Mode == applier.ModeDryRun.String():
		fmt.Fprintf(out, "Dry run of plan %s: %d action(s) would run\n", result.PlanID, len(result.Actions))
	case result.SessionID == "":
		fmt.Fprintf(out, "Plan %s has nothing to apply\n", result.PlanID)
	default:
		fmt.Fprintf(out, "Session %s: %s, %d action(s) completed in %s\n",
			result.SessionID, result.Outcome, len(result.Completed), result.Duration.Round(time.Millisecond))
	}
	if result.Cancelled {
		fmt.Fprintln(out, "Run cancelled; completed actions stay journaled and can be undone")
	}
}

func newUndoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "undo [session|last]",
		Short: "Reverse the actions of a journal session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "last"
			if len(args) == 1 {
				target = args[0]
			}
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				result, err := m.Undo(cmd.Context(), target)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, result); err != nil {
						return err
					}
				} else {
					printUndoResult(cmd, result)
				}
				return outcomeError(result.Outcome)
			})
		},
	}
}

func printUndoResult(cmd *cobra.Command, result *undo.Result) {
	out := cmd.OutOrStdout()
	if result.NothingToUndo {
		fmt.Fprintf(out, "Session %s has nothing to undo\n", result.SessionID)
		return
	}
	fmt.Fprintf(out, "Session %s: reversed %d action(s), %s\n", result.SessionID, len(result.Reversed), result.Outcome)
	if len(result.Inconsistencies) == 0 {
		return
	}
	rows := make([][]string, 0, len(result.Inconsistencies))
	for _, inc := range result.Inconsistencies {
		rows = append(rows, []string{strconv.Itoa(inc.Seq), string(inc.Kind), inc.Path, inc.Reason})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Seq", "Action", "Path", "Problem"}, rows, []columnAlignment{alignRight}))
}
