package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audioclean/internal/journal"
	"audioclean/internal/workflow"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect apply sessions",
	}
	journalCmd.AddCommand(newJournalListCommand(ctx))
	journalCmd.AddCommand(newJournalShowCommand(ctx))
	return journalCmd
}

func newJournalListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				sessions, err := m.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, sessions)
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions journaled")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.ID,
						s.PlanID,
						string(s.Status),
						humanize.Time(s.StartedAt),
						strconv.Itoa(s.Applied),
						strconv.Itoa(s.Failed),
						strconv.Itoa(s.Undone),
					})
				}
				headers := []string{"Session", "Plan", "Status", "Started", "Applied", "Failed", "Undone"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
				fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
				return nil
			})
		},
	}
}

func newJournalShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show the entries of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				session, entries, err := m.Session(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, struct {
						journal.Session
						Entries []journal.Entry `json:"entries"`
					}{session, entries})
				}
				printSession(cmd, session, entries)
				return nil
			})
		},
	}
}

func printSession(cmd *cobra.Command, session journal.Session, entries []journal.Entry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s (plan %s): %s, started %s\n",
		session.ID, session.PlanID, session.Status, session.StartedAt.Format(time.RFC3339))
	if len(entries) == 0 {
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		outcome := string(e.Outcome)
		if e.Undone {
			outcome += " (undone)"
		}
		if e.Error != "" {
			outcome += ": " + e.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Seq),
			e.Action.Describe(),
			outcome,
			yesNo(e.Undoable),
		})
	}
	headers := []string{"Seq", "Action", "Outcome", "Undoable"}
	fmt.Fprintln(out, renderTable(out, headers, rows, []columnAlignment{alignRight}))
}
