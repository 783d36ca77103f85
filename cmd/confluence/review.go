package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/confluence/internal/store"
)

func newReviewCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect claims queued for manual review",
	}
	cmd.AddCommand(newReviewListCommand(a))
	cmd.AddCommand(newReviewDismissCommand(a))
	return cmd
}

func newReviewListCommand(a *app) *cobra.Command {
	var (
		limit int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open review items, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status := store.ReviewOpen
			if all {
				status = ""
			}
			items, err := a.store.ListReviews(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			if a.format == "json" {
				return printJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no review items")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSOURCE\tREASON\tCANDIDATES\tSTATUS\tQUEUED")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					it.ID, it.EntityType, it.Source, it.Reason,
					strings.Join(it.Candidates, ","), it.Status, humanize.Time(it.CreatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of items")
	cmd.Flags().BoolVar(&all, "all", false, "include dismissed items")
	return cmd
}

func newReviewDismissCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <id>...",
		Short: "Mark review items as handled",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := a.store.SetReviewStatus(cmd.Context(), id, store.ReviewDismissed); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dismissed %s\n", id)
			}
			return nil
		},
	}
}
