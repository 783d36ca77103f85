package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/sydlexius/confluence/internal/ingest"
)

func newReconcileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <batch.json>...",
		Short: "Reconcile batch files into the catalog",
		Long: `Reconcile one or more batch documents, in the order given. Each file is
applied in its own transaction; a failing file does not stop the rest.

Example:
  confluence reconcile --db ./catalog.db spotify-2026-10-01.json plays.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := a.runner(a.engine())
			out := cmd.OutOrStdout()

			var errs error
			outcomes := make([]*ingest.Outcome, 0, len(args))
			for _, path := range args {
				outcome, err := runner.RunFile(cmd.Context(), path)
				outcomes = append(outcomes, outcome)
				if err != nil {
					errs = multierr.Append(errs, err)
				}
				if a.format == "text" {
					printOutcome(out, outcome, err)
				}
			}
			if a.format == "json" {
				runs := make([]any, 0, len(outcomes))
				for _, o := range outcomes {
					if o.Run != nil {
						runs = append(runs, o.Run)
					}
				}
				if err := printJSON(out, runs); err != nil {
					return err
				}
			}
			if errs != nil {
				return fmt.Errorf("%d of %d batches failed: %w", len(multierr.Errors(errs)), len(args), errs)
			}
			return nil
		},
	}
}

func printOutcome(w io.Writer, o *ingest.Outcome, err error) {
	if err != nil {
		fmt.Fprintf(w, "%s: failed: %v\n", o.File, err)
		return
	}
	fmt.Fprintf(w, "%s (batch %s): %s claims, %s created, %s merged, %s skipped, %s for review; %s entities and %s events written\n",
		o.File, o.BatchID,
		humanize.Comma(int64(o.Claims)),
		humanize.Comma(int64(o.Applied.Created)),
		humanize.Comma(int64(o.Applied.Merged)),
		humanize.Comma(int64(o.Applied.Skipped)),
		humanize.Comma(int64(o.Applied.ManualReview)),
		humanize.Comma(int64(o.Persisted.PersistedEntities)),
		humanize.Comma(int64(o.Persisted.PersistedEvents)),
	)
}
