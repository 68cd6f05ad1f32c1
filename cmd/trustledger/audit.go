package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/totegamma/trustledger/internal/infra/providers"
	"github.com/totegamma/trustledger/internal/usecase"
)

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <id>...",
		Short: "Compare stored standings with the vouch ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			economy, err := conf.Economy.ToDomain()
			if err != nil {
				return err
			}
			store, err := providers.NewStore(conf.Server)
			if err != nil {
				return err
			}
			uc := usecase.NewAuditUsecase(store, economy)

			enc := json.NewEncoder(cmd.OutOrStdout())
			drifted := 0
			for _, id := range args {
				report, err := uc.Audit(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("audit %s: %w", id, err)
				}
				if !report.Consistent {
					drifted++
				}
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			if drifted > 0 {
				return fmt.Errorf("%d of %d entities drifted from the ledger", drifted, len(args))
			}
			return nil
		},
	}
}
