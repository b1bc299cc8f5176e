package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/spf13/cobra"
)

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the points ledger and nickname directory",
	}

	cmd.AddCommand(
		newLedgerTopCmd(opts),
		newLedgerNameCmd(opts),
	)

	return cmd
}

func newLedgerTopCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the players with the most points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			ledger, err := app.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			balances, err := ledger.Top(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(balances)
			}

			if len(balances) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no points awarded yet")
				return err
			}
			for i, b := range balances {
				name := b.Name
				if name == "" {
					name = string(b.Player)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d.\t%s\t%d\t%d awards\n", i+1, name, b.Points, b.Awards)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of players to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print balances as JSON")

	return cmd
}

func newLedgerNameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "name <player-id> <nickname>",
		Short: "Set the display name used in game notices",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			ledger, err := app.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			if err := ledger.SetDisplayName(cmd.Context(), domain.PlayerID(args[0]), args[1]); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is now shown as %s\n", args[0], args[1])
			return err
		},
	}
}
