package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type SocialCmd struct{}

func NewSocialCmd() *SocialCmd {
	return &SocialCmd{}
}

func (c *SocialCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-social",
		Short: "Announce datasets found by the last reconcile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, log, err := newClient(ctx, cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.PublishSocial(ctx)
			if res != nil {
				fmt.Fprintln(cmd.OutOrStdout(), res.Dump())
			}
			if err != nil {
				if res != nil && len(res.Posted) > 0 {
					log.Warn("stopped after partial announce", "posted", len(res.Posted))
				}
				return err
			}
			return nil
		},
	}
}
