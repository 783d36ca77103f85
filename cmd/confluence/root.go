package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/sydlexius/confluence/internal/batch"
	"github.com/sydlexius/confluence/internal/config"
	"github.com/sydlexius/confluence/internal/database"
	"github.com/sydlexius/confluence/internal/ingest"
	"github.com/sydlexius/confluence/internal/logging"
	"github.com/sydlexius/confluence/internal/reconcile"
	"github.com/sydlexius/confluence/internal/store"
)

const defaultConfigPath = "/data/config.yaml"

var validFormats = []string{"text", "json"}

// app carries the state shared by every subcommand once the root command's
// pre-run has loaded config and opened the catalog.
type app struct {
	configPath string
	dbPath     string
	format     string

	cfg    *config.Config
	logs   *logging.Manager
	logger *slog.Logger
	db     *sqlx.DB
	store  *store.Store
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "confluence",
		Short: "Reconcile music catalog batches into one canonical catalog",
		Long: `Confluence merges claims from music providers, streaming services and
user libraries into a deduplicated catalog of artists, releases, recordings
and labels. Batches are JSON documents applied one at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(validFormats, a.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", a.format, validFormats)
			}
			return a.open(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	configPath := os.Getenv("CONFLUENCE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", configPath, "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the SQLite catalog (overrides config)")
	cmd.PersistentFlags().StringVar(&a.format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(a))
	cmd.AddCommand(newReconcileCommand(a))
	cmd.AddCommand(newWatchCommand(a))
	cmd.AddCommand(newReviewCommand(a))
	cmd.AddCommand(newRunsCommand(a))
	cmd.AddCommand(newBackupCommand(a))
	cmd.AddCommand(newOptimizeCommand(a))

	return cmd
}

func (a *app) open(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	a.cfg = cfg

	a.logs, a.logger = logging.New(cfg.Logging, logOut)
	slog.SetDefault(a.logger)

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	version, err := database.Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	a.logger.Debug("catalog ready", "path", cfg.Database.Path, "schema_version", version)

	a.db = db
	a.store = store.New(db)
	return nil
}

func (a *app) close() error {
	var err error
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
		a.db = nil
	}
	if a.logs != nil {
		err = multierr.Append(err, a.logs.Close())
		a.logs = nil
	}
	return err
}

// engine builds a reconciliation engine over the catalog.
func (a *app) engine() *reconcile.Engine {
	return reconcile.NewEngine(a.store, a.cfg.EngineSettings(), a.logger)
}

func (a *app) runner(engine ingest.Reconciler) *ingest.Runner {
	return ingest.NewRunner(batch.NewDecoder(a.logger), engine, a.store, a.logger)
}

// printJSON writes v as indented JSON for --format json.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, err := database.Version(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog %s at schema version %d\n", a.cfg.Database.Path, version)
			return nil
		},
	}
}
