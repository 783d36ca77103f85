package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/confluence/internal/backup"
	"github.com/sydlexius/confluence/internal/maintenance"
)

func newBackupCommand(a *app) *cobra.Command {
	var (
		dir  string
		list bool
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the catalog and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.Backup.Dir
			}
			svc := backup.NewService(a.db, dir, a.cfg.Backup.Retention, a.logger)
			out := cmd.OutOrStdout()

			if !list {
				snap, err := svc.Take(cmd.Context())
				if err != nil {
					return err
				}
				if _, err := svc.Prune(); err != nil {
					return err
				}
				if a.format == "text" {
					fmt.Fprintf(out, "wrote %s (%s)\n", snap.Filename, humanize.Bytes(uint64(snap.Size))) //nolint:gosec // sizes are non-negative
					return nil
				}
			}

			snaps, err := svc.List()
			if err != nil {
				return err
			}
			if a.format == "json" {
				return printJSON(out, snaps)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SNAPSHOT\tSIZE\tTAKEN")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Filename, humanize.Bytes(uint64(s.Size)), humanize.Time(s.CreatedAt)) //nolint:gosec // sizes are non-negative
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "snapshot directory (defaults to backup.dir)")
	cmd.Flags().BoolVar(&list, "list", false, "list snapshots instead of taking one")
	return cmd
}

func newOptimizeCommand(a *app) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run SQLite maintenance on the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := maintenance.NewService(a.db, a.cfg.Database.Path, a.logger)
			if err := svc.Optimize(cmd.Context()); err != nil {
				return err
			}
			if vacuum {
				if err := svc.Vacuum(cmd.Context()); err != nil {
					return err
				}
			}
			st, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			if a.format == "json" {
				return printJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog %s, wal %s, %s pages of %s, %s free\n",
				humanize.Bytes(uint64(st.DBFileSize)), humanize.Bytes(uint64(st.WALFileSize)), //nolint:gosec // sizes are non-negative
				humanize.Comma(st.PageCount), humanize.Bytes(uint64(st.PageSize)), humanize.Comma(st.FreelistCount)) //nolint:gosec // sizes are non-negative
			return nil
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "also rebuild the file to reclaim free pages")
	return cmd
}
