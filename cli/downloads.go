package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
	"github.com/petshop/backend/services"
)

func (c *CLI) downloadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "downloads <month_start> <month_end>",
		Short: "Import monthly download counts",
		Long: `Import PyPI download counts for every month from the month of month_start
up to month_end (exclusive). Dates are YYYY-MM-DD or YYYY-MM.

Each month is split into sub-windows (import.number_of_splits) to bound the
cost of every source query, and re-running a month replaces its totals.`,
		Example: `  petshop downloads 2024-01-01 2024-04-01
  petshop downloads 2024-03 2024-04 --config config/config.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate(args[0])
			if err != nil {
				return err
			}
			end, err := parseDate(args[1])
			if err != nil {
				return err
			}
			return c.runDownloads(cmd.Context(), start, end)
		},
	}
	cmd.AddCommand(c.historyCommand())
	return cmd
}

func (c *CLI) runDownloads(ctx context.Context, start, end time.Time) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store, err := c.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, cleanup, err := c.newDownloadService(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer cleanup()

	prog := newProgress(c.Logger)
	err = svc.ImportRange(ctx, start, end, func(month time.Time, r models.ReconcileResult) {
		printSuccess(c.Out, "%s  processed %s  created %s  updated %s  not found %s",
			month.Format("2006-01"), number(r.Processed), number(r.Created), number(r.Updated), number(r.NotFound))
		total, err := store.MonthTotal(ctx, month)
		if err != nil {
			c.Logger.Warn("could not sum month", "month", month.Format("2006-01"), "err", err)
			return
		}
		printDetail(c.Out, "%d downloads recorded", total)
	})
	if err != nil {
		return err
	}
	prog.done("import finished")
	return nil
}

func (c *CLI) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent import runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHistory(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")
	return cmd
}

func (c *CLI) runHistory(ctx context.Context, limit int) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store, err := c.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := services.NewDownloadService(store, nil, cfg.Import.CommitEveryNthRow, c.Logger).ImportHistory(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		printInfo(c.Out, "no import runs recorded")
		return nil
	}

	for _, r := range runs {
		line := []any{r.ID, r.Month.Format("2006-01"), r.Source, r.Status, r.StartedAt.Format(time.DateTime)}
		switch r.Status {
		case models.RunStatusSucceeded:
			printSuccess(c.Out, "#%d %s %s %s at %s", line...)
			printDetail(c.Out, "processed %d  created %d  updated %d  not found %d", r.Processed, r.Created, r.Updated, r.NotFound)
		case models.RunStatusFailed:
			printError(c.Out, "#%d %s %s %s at %s", line...)
			printDetail(c.Out, "%s", r.Error)
		default:
			printInfo(c.Out, "#%d %s %s %s at %s", line...)
		}
	}
	return nil
}

// parseDate accepts YYYY-MM-DD, or YYYY-MM meaning the first of that month.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid date %q, use YYYY-MM-DD or YYYY-MM", s)
}
