package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petshop/backend/services"
)

// errIncompleteMonths makes validate-downloads exit non-zero.
var errIncompleteMonths = errors.New("incomplete months found")

func (c *CLI) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-downloads",
		Short: "List months imported before they were complete",
		Long: `A month is incomplete when any of its download rows was imported before the
month ended; the source was still filling in that partition. Incomplete months
are printed with ✗ and make the command exit with status 1. Re-import them
with "petshop downloads".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate(cmd.Context())
		},
	}
}

func (c *CLI) runValidate(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store, err := c.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// the validator only reads the ledger, no count source needed
	svc := services.NewDownloadService(store, nil, cfg.Import.CommitEveryNthRow, c.Logger)
	months, err := svc.IncompleteMonths(ctx)
	if err != nil {
		return err
	}

	if len(months) == 0 {
		printSuccess(c.Out, "all imported months are complete")
		return nil
	}
	for _, m := range months {
		printError(c.Out, "%s was imported before the month ended", m.Format("2006-01"))
	}
	return fmt.Errorf("%w: %d to re-import", errIncompleteMonths, len(months))
}
