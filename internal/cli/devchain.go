package cli

import (
	"log/slog"

	"github.com/compose-network/contract-pipeline/configs"
	"github.com/compose-network/contract-pipeline/internal/devchain"
	"github.com/compose-network/contract-pipeline/internal/infra/docker"
	"github.com/spf13/cobra"
)

func devchainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devchain",
		Short: "Manage a local anvil development chain",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Start the dev chain container and wait for its RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, closeClient, err := newDevChain(configs.Values.DevChain)
			if err != nil {
				return err
			}
			defer closeClient()

			url, err := chain.Up(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println(url)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Stop and remove the dev chain container",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, closeClient, err := newDevChain(configs.Values.DevChain)
			if err != nil {
				return err
			}
			defer closeClient()

			return chain.Down(cmd.Context())
		},
	})

	return cmd
}

func newDevChain(cfg configs.DevChain) (*devchain.Chain, func(), error) {
	client, err := docker.New()
	if err != nil {
		return nil, nil, err
	}

	chain := devchain.New(client, devchain.Options{
		Name:    cfg.Name,
		Image:   cfg.Image,
		Port:    cfg.Port,
		ChainID: cfg.ChainID,
	})

	return chain, func() {
		if err := client.Close(); err != nil {
			slog.With("err", err.Error()).Warn("failed to close docker client")
		}
	}, nil
}
