package main

import (
	"github.com/spf13/cobra"

	"github.com/totegamma/trustledger/internal/infra/providers"
	"github.com/totegamma/trustledger/internal/platform/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(serviceName, conf.Server.LogLevel)

			db, err := providers.NewDatabase(conf.Server)
			if err != nil {
				return err
			}
			if err := providers.MigrateDatabase(db); err != nil {
				return err
			}

			log.Info().Msg("migration complete")
			return nil
		},
	}
}
