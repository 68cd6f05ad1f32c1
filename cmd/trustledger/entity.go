package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/totegamma/trustledger/internal/infra/providers"
	"github.com/totegamma/trustledger/internal/platform/logger"
	"github.com/totegamma/trustledger/internal/usecase"
)

func newEntityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage ledger entities",
	}
	cmd.AddCommand(newEntityCreateCmd(), newEntityGetCmd())
	return cmd
}

func newEntityCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <id>",
		Short: "Register an entity at its initial standing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := newEntityUsecase()
			if err != nil {
				return err
			}
			entity, err := uc.Register(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(entity)
		},
	}
}

func newEntityGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an entity's score and tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := newEntityUsecase()
			if err != nil {
				return err
			}
			entity, err := uc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(entity)
		},
	}
}

func newEntityUsecase() (*usecase.EntityUsecase, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := providers.NewStore(conf.Server)
	if err != nil {
		return nil, err
	}
	return usecase.NewEntityUsecase(store, nil, logger.New(serviceName, conf.Server.LogLevel)), nil
}
