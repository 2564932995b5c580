package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"audioclean/internal/config"
	"audioclean/internal/report"
	"audioclean/internal/scanner"
	"audioclean/internal/services"
	"audioclean/internal/workflow"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [roots...]",
		Short: "Refresh the identity cache for the library roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := scanOptions(args)
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				progress, done := scanProgress(cmd.ErrOrStderr())
				opts.Progress = progress
				rep, err := m.Scan(cmd.Context(), opts)
				done()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, rep)
				}
				printScanReport(cmd, rep)
				return outcomeError(rep.Outcome)
			})
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [roots...]",
		Short: "Scan and report duplicate groups without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := scanOptions(args)
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				progress, done := scanProgress(cmd.ErrOrStderr())
				opts.Progress = progress
				analysis, err := m.Analyze(cmd.Context(), opts)
				done()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, analysis.Report)
				}
				printAnalysis(cmd, analysis.Report)
				return nil
			})
		},
	}
}

func scanOptions(args []string) (workflow.ScanOptions, error) {
	var opts workflow.ScanOptions
	for _, arg := range args {
		root, err := config.ExpandPath(arg)
		if err != nil {
			return opts, fmt.Errorf("resolve root %q: %w", arg, err)
		}
		opts.Roots = append(opts.Roots, root)
	}
	return opts, nil
}

func printScanReport(cmd *cobra.Command, rep *scanner.Report) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(rep.Roots))
	for _, rc := range rep.Roots {
		rows = append(rows, []string{
			rc.Root,
			strconv.Itoa(rc.Files),
			strconv.Itoa(rc.New),
			strconv.Itoa(rc.Unchanged),
			strconv.Itoa(rc.Changed),
			strconv.Itoa(rc.Removed),
			strconv.Itoa(rc.Errors),
			report.Bytes(rc.Bytes),
		})
	}
	headers := []string{"Root", "Files", "New", "Unchanged", "Changed", "Removed", "Errors", "Size"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
	fmt.Fprintf(out, "Hashed %d file(s) (%s); fingerprinted %d; %s in %s\n",
		rep.FilesHashed, report.Bytes(rep.BytesHashed), rep.Fingerprinted,
		rep.Outcome, rep.Duration.Round(time.Millisecond))
	for _, e := range rep.Errors {
		fmt.Fprintf(out, "  error: %v\n", e)
	}
}

func printAnalysis(cmd *cobra.Command, a report.Analysis) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, a.Headline())
	if len(a.Groups) > 0 {
		rows := make([][]string, 0, len(a.Groups))
		for _, g := range a.Groups {
			rows = append(rows, []string{
				g.ID,
				string(g.Reason),
				strconv.Itoa(g.Size),
				g.Canonical,
				report.Bytes(g.ReclaimableBytes),
			})
		}
		headers := []string{"Group", "Reason", "Members", "Keep", "Reclaimable"}
		aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight}
		fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
	}
	if a.Stats.Groups > 0 {
		fmt.Fprintf(out, "Average group size %.1f, largest %d\n", a.Stats.AvgGroupSize, a.Stats.MaxGroupSize)
	}
	for _, e := range a.Errors {
		fmt.Fprintf(out, "  error: %s: %s\n", e.Path, e.Error)
	}
}

// outcomeError turns a partial or failed outcome into an exit status.
func outcomeError(outcome services.Outcome) error {
	switch outcome {
	case services.OutcomeSucceeded:
		return nil
	case services.OutcomePartial:
		return errPartial
	default:
		return fmt.Errorf("run %s", outcome)
	}
}
