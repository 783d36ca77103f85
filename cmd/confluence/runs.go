package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRunsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent reconcile runs and catalog totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			totals, err := a.store.CountEntities(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.format == "json" {
				return printJSON(out, map[string]any{"runs": runs, "entities": totals})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tBATCH\tCLAIMS\tCREATED\tMERGED\tREVIEW\tFILE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					humanize.Time(r.StartedAt), r.Status, r.BatchID,
					humanize.Comma(int64(r.Claims)), humanize.Comma(int64(r.Created)),
					humanize.Comma(int64(r.Merged)), humanize.Comma(int64(r.ManualReview)), r.File)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			for _, t := range slices.Sorted(maps.Keys(totals)) {
				fmt.Fprintf(out, "%-14s %s\n", t, humanize.Comma(int64(totals[t])))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}
