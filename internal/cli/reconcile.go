package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hkloudou/odwatch/internal/aggregate"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type ReconcileCmd struct{}

func NewReconcileCmd() *ReconcileCmd {
	return &ReconcileCmd{}
}

func (c *ReconcileCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the canonical table, deltas and aggregates from all snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
			if err != nil {
				return fmt.Errorf("failed to get verbose flag: %w", err)
			}
			top, err := cmd.Flags().GetInt("top")
			if err != nil {
				return fmt.Errorf("failed to get top flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, _, err := newClient(ctx, cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Reconcile(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, res.Dump())
			if verbose {
				printSummary(out, res.Summary, top)
			}
			return nil
		},
	}

	cmd.Flags().Int("top", 10, "show only the last N rows of each aggregate in verbose output (0 for all)")

	return cmd
}

// printSummary renders every aggregate as a table
func printSummary(w io.Writer, s aggregate.Summary, top int) {
	for _, named := range s.Tables() {
		fmt.Fprintf(w, "\nCount by %s\n", named.Name)

		table := tablewriter.NewWriter(w)
		table.SetAutoWrapText(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
		table.SetAutoFormatHeaders(false)
		table.SetBorder(true)
		table.SetHeader([]string{named.Name, "n"})

		counts := named.Counts
		if top > 0 && len(counts) > top {
			counts = counts[len(counts)-top:]
		}
		for _, c := range counts {
			table.Append([]string{c.Key, strconv.Itoa(c.N)})
		}
		table.Render()
	}
}
