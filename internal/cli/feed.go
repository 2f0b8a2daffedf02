package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type FeedCmd struct{}

func NewFeedCmd() *FeedCmd {
	return &FeedCmd{}
}

func (c *FeedCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-feed",
		Short: "Write RSS and Atom feeds of the most recently created datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, _, err := newClient(ctx, cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.PublishFeed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Dump())
			return nil
		},
	}
}
