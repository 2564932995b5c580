package main

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"audioclean/internal/duplicates"
	"audioclean/internal/report"
	"audioclean/internal/workflow"
)

const clearDecision = "clear"

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var (
		largest bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List duplicate groups from the identity cache with their planned decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				views, err := m.Groups(cmd.Context())
				if err != nil {
					return err
				}
				if largest {
					sort.SliceStable(views, func(i, j int) bool {
						return views[i].Group.ReclaimableBytes() > views[j].Group.ReclaimableBytes()
					})
				}
				if limit > 0 && len(views) > limit {
					views = views[:limit]
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No duplicate groups in the identity cache; run 'audioclean scan' first")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						strconv.Itoa(v.Index),
						shortID(v.Group.ID),
						string(v.Group.Reason),
						strconv.Itoa(len(v.Group.Members)),
						v.Group.Canonical.Path,
						report.Bytes(v.Group.ReclaimableBytes()),
						strconv.Itoa(overrideCount(v)),
					})
				}
				headers := []string{"#", "Group", "Reason", "Members", "Canonical", "Reclaimable", "Overrides"}
				aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight}
				fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&largest, "largest", false, "Order groups by reclaimable size")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many groups")
	return cmd
}

func newGroupCommand(ctx *commandContext) *cobra.Command {
	var template string
	cmd := &cobra.Command{
		Use:   "group <id> [keep|delete|skip|move|quarantine|rename|mark-review|clear <pattern>]",
		Short: "Show a duplicate group or override the decision for matching members",
		Long: "With only a group reference, prints the group. The reference is the number shown by\n" +
			"'audioclean groups', a group ID, or an ID prefix. With a decision and a file name or\n" +
			"glob pattern, stores that decision for the matching members; the next plan honours it.\n" +
			"'clear' removes stored decisions.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("expected <id> or <id> <decision> <pattern>, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				if len(args) == 1 {
					view, err := m.Group(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, view)
					}
					printGroup(cmd, view)
					return nil
				}

				req := workflow.OverrideRequest{Group: args[0], Decision: args[1], Pattern: args[2], Template: template}
				if strings.EqualFold(args[1], clearDecision) {
					req.Decision, req.Clear = "", true
				}
				view, matched, err := m.SetGroupOverride(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"group": view, "matched": matched})
				}
				if req.Clear {
					fmt.Fprintf(cmd.OutOrStdout(), "Override cleared for %d file(s)\n", len(matched))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Override set: %s for %d file(s)\n", strings.ToLower(args[1]), len(matched))
				}
				printGroup(cmd, view)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "Layout template for rename, e.g. \"{track:02} {title}\"")
	return cmd
}

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	dupCmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Duplicate group exports",
	}
	dupCmd.AddCommand(newDuplicatesExportCommand(ctx))
	return dupCmd
}

func newDuplicatesExportCommand(ctx *commandContext) *cobra.Command {
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every duplicate group member with its decision, as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				views, err := m.Groups(cmd.Context())
				if err != nil {
					return err
				}
				if !asCSV {
					return writeJSON(cmd, exportRows(views))
				}
				w := csv.NewWriter(cmd.OutOrStdout())
				if err := w.Write([]string{"group", "group_id", "reason", "canonical", "path", "decision", "override", "confidence"}); err != nil {
					return err
				}
				for _, row := range exportRows(views) {
					if err := w.Write([]string{
						strconv.Itoa(row.Group),
						row.GroupID,
						row.Reason,
						row.Canonical,
						row.Path,
						string(row.Decision),
						strconv.FormatBool(row.Override),
						strconv.FormatFloat(row.Confidence, 'f', 2, 64),
					}); err != nil {
						return err
					}
				}
				w.Flush()
				return w.Error()
			})
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Write CSV instead of JSON")
	return cmd
}

type exportRow struct {
	Group      int                 `json:"group"`
	GroupID    string              `json:"group_id"`
	Reason     string              `json:"reason"`
	Canonical  string              `json:"canonical"`
	Path       string              `json:"path"`
	Decision   duplicates.Decision `json:"decision"`
	Template   string              `json:"template,omitempty"`
	Override   bool                `json:"override"`
	Confidence float64             `json:"confidence"`
}

func exportRows(views []workflow.GroupView) []exportRow {
	rows := []exportRow{}
	for _, v := range views {
		for _, a := range v.Actions {
			rows = append(rows, exportRow{
				Group:      v.Index,
				GroupID:    v.Group.ID,
				Reason:     string(v.Group.Reason),
				Canonical:  v.Group.Canonical.Path,
				Path:       a.Record.Path,
				Decision:   a.Decision,
				Template:   a.Template,
				Override:   a.Override,
				Confidence: a.Decision.Confidence(),
			})
		}
	}
	return rows
}

func printGroup(cmd *cobra.Command, v workflow.GroupView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Group #%d %s (%s)\n", v.Index, v.Group.ID, v.Group.Reason)
	fmt.Fprintf(out, "Canonical: %s\n", v.Group.Canonical.Path)
	rows := make([][]string, 0, len(v.Actions))
	for _, a := range v.Actions {
		decision := string(a.Decision)
		if a.Override {
			decision += " *"
		}
		rows = append(rows, []string{
			decision,
			filepath.Base(a.Record.Path),
			string(a.Record.Container),
			report.Bytes(a.Record.Size),
			a.Record.Path,
		})
	}
	headers := []string{"Decision", "File", "Format", "Size", "Path"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
	fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
}

func overrideCount(v workflow.GroupView) int {
	n := 0
	for _, a := range v.Actions {
		if a.Override {
			n++
		}
	}
	return n
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
