package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"audioclean/internal/report"
	"audioclean/internal/workflow"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Identity cache maintenance",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize cached file identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				stats, err := m.CacheStats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"Database", stats.Path},
					{"Records", strconv.Itoa(stats.Records)},
					{"Fingerprinted", strconv.Itoa(stats.Fingerprinted)},
					{"Roots", strconv.Itoa(stats.Roots)},
					{"Total size", report.Bytes(stats.TotalBytes)},
				}
				if stats.Recovered != "" {
					rows = append(rows, []string{"Recovered from", stats.Recovered})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached identity; the next scan rehashes all files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(m *workflow.Manager) error {
				if err := m.ClearCache(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Identity cache cleared")
				return nil
			})
		},
	}
}
