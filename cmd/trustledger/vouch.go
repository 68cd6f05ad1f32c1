package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/totegamma/trustledger/client"
)

func newVouchCmd() *cobra.Command {
	var (
		server    string
		requester string
	)

	cmd := &cobra.Command{
		Use:   "vouch <receiver-id>",
		Short: "Cast a vouch through a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requester == "" {
				return errors.New("--as is required")
			}
			c := client.New(server, client.WithRequester(requester), client.WithUserAgent(serviceName+"-cli"))
			result, err := c.CastVouch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}

	defaultServer := os.Getenv("TRUSTLEDGER_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "base URL of the trustledger server")
	cmd.Flags().StringVar(&requester, "as", "", "entity id to vouch as")
	return cmd
}
