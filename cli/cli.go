// Package cli implements the petshop command-line interface: importing
// monthly download counts, validating completeness, serving the admin API and
// auditing the package directory against PyPI.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/petshop/backend/config"
	"github.com/petshop/backend/database"
	"github.com/petshop/backend/services"
	"github.com/petshop/backend/source"
)

// Build information, set via ldflags:
//
//	go build -ldflags "-X github.com/petshop/backend/cli.Version=v1.0.0 -X github.com/petshop/backend/cli.Commit=$(git rev-parse HEAD)"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Out    io.Writer

	configPath string
	verbose    bool
}

// New creates a CLI logging to w at the given level. Command output goes to stdout.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Out:    os.Stdout,
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "petshop",
		Short:         "petshop imports PyPI download statistics",
		Long:          `petshop imports monthly PyPI download counts from BigQuery (or a CSV dump) into the package database and checks which months need a re-import.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.verbose {
				c.Logger.SetLevel(LogDebug)
			}
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date))
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.downloadsCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.migrateCommand())
	root.AddCommand(c.auditCommand())

	return root
}

// =============================================================================
// Wiring
// =============================================================================

func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("configuration loaded", "source", cfg.Import.Source, "driver", cfg.Database.Driver)
	return cfg, nil
}

func (c *CLI) openStore(ctx context.Context, cfg *config.Config) (*database.Store, error) {
	return database.Open(ctx, cfg.Database, c.Logger)
}

// newCountSource builds the configured count source. The returned closer
// releases it and is never nil.
func (c *CLI) newCountSource(ctx context.Context, cfg *config.Config) (source.CountSource, func(), error) {
	switch cfg.Import.Source {
	case "csv":
		if cfg.Import.CSVURL != "" {
			c.Logger.Info("downloading count dump", "url", cfg.Import.CSVURL, "path", cfg.Import.CSVPath)
			if err := source.DownloadFile(ctx, source.NewHTTPClient(), cfg.Import.CSVURL, cfg.Import.CSVPath); err != nil {
				return nil, nil, err
			}
		}
		return source.NewCSVSource(cfg.Import.CSVPath, c.Logger), func() {}, nil
	default:
		bq, err := source.NewBigQuerySource(ctx, cfg.BigQuery, c.Logger)
		if err != nil {
			return nil, nil, err
		}
		return bq, func() { bq.Close() }, nil
	}
}

// newDownloadService wires store, count source and fetcher together. The
// returned cleanup closes what was opened.
func (c *CLI) newDownloadService(ctx context.Context, cfg *config.Config, store *database.Store) (*services.DownloadService, func(), error) {
	src, closeSource, err := c.newCountSource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	fetcher := source.NewFetcher(src, cfg.Import.NumberOfSplits, cfg.Import.ParallelWindows, c.Logger)
	return services.NewDownloadService(store, fetcher, cfg.Import.CommitEveryNthRow, c.Logger), closeSource, nil
}
