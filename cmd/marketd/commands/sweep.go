package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/openmarket/engine"
	"github.com/cloudx-io/openmarket/sweeper"
)

func newSweepCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close ended auctions and expire stale offers once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := newMarket(ctx, a.cfg, a.logger, engine.NopMetrics())
			if err != nil {
				return err
			}
			defer m.Close()

			res, err := sweeper.New(m.engine, a.cfg.SweepInterval, a.logger).RunOnce(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().String("store", "memory", "listing store (memory|postgres)")
	return cmd
}
