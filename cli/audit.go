package cli

import (
	"github.com/spf13/cobra"

	"github.com/petshop/backend/services"
	"github.com/petshop/backend/source"
)

func (c *CLI) auditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-packages",
		Short: "Report directory packages that PyPI no longer serves",
		Long: `Compare the package directory with the PyPI simple index and confirm every
missing name against the JSON API. Nothing is deleted: download rows of
removed packages stay in the ledger and are listed here for review.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := c.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			httpClient := source.NewHTTPClient()
			audit := services.NewAuditService(
				store,
				source.NewSimpleIndex(cfg.PyPI.SimpleIndexURL, httpClient),
				source.NewPyPIClient(cfg.PyPI.JSONAPIURL, httpClient),
				c.Logger,
			)

			prog := newProgress(c.Logger)
			removed, err := audit.RemovedPackages(ctx)
			if err != nil {
				return err
			}
			prog.done("audit finished")

			if len(removed) == 0 {
				printSuccess(c.Out, "every directory package is still on PyPI")
				return nil
			}
			for _, e := range removed {
				printWarning(c.Out, "%s (id %d) is no longer on PyPI", e.Name, e.ID)
			}
			printInfo(c.Out, "%s package(s) removed upstream", number(len(removed)))
			return nil
		},
	}
}
