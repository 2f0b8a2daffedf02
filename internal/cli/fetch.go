package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type FetchCmd struct{}

func NewFetchCmd() *FetchCmd {
	return &FetchCmd{}
}

func (c *FetchCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the catalog and store it as a new snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, _, err := newClient(ctx, cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Fetch(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Dump())
			return nil
		},
	}
}
