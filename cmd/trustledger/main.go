package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/totegamma/trustledger/internal/config"
)

const serviceName = "trustledger"

var configPath string

func main() {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Trust propagation ledger for community vouches",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("TRUSTLEDGER_CONFIG"), "path to the YAML config file")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newEntityCmd(),
		newAuditCmd(),
		newVouchCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
