package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/idiom-relay/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the relay configuration",
	}

	cmd.AddCommand(newConfigCheckCmd(opts))

	return cmd
}

func newConfigCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the effective values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}
			if err := app.cfg.Validate(); err != nil {
				return err
			}

			g := app.cfg.Game
			out := cmd.OutOrStdout()
			settings := app.cfg.Settings()

			_, _ = fmt.Fprintf(out, "enable\t%t\n", g.Enable)
			_, _ = fmt.Fprintf(out, "commands\t%s\n", strings.Join(g.Commands, ", "))
			_, _ = fmt.Fprintf(out, "end-commands\t%s\n", strings.Join(g.EndCommands, ", "))
			_, _ = fmt.Fprintf(out, "round-timeout\t%s\n", settings.RoundTimeout)
			_, _ = fmt.Fprintf(out, "reminder-time\t%s\n", settings.ReminderLead)
			_, _ = fmt.Fprintf(out, "mode\t%s (%s)\n", settings.Mode, settings.Mode.Label())
			_, _ = fmt.Fprintf(out, "allow-repeat\t%t\n", g.AllowRepeat)
			_, _ = fmt.Fprintf(out, "local-check\t%t\n", g.LocalCheck)
			_, _ = fmt.Fprintf(out, "api-url\t%s\n", g.APIURL)
			_, _ = fmt.Fprintf(out, "app-secret\t%s\n", config.MaskSecret(g.AppSecret))
			_, _ = fmt.Fprintf(out, "points\tbase %d, bonus %d\n", g.BasePoints, g.BonusPoints)
			_, _ = fmt.Fprintf(out, "transport\t%s\n", app.cfg.Transport.Kind)
			_, _ = fmt.Fprintf(out, "sessions-dir\t%s\n", app.repo.Dir())
			_, _ = fmt.Fprintf(out, "ledger\t%t\n", app.cfg.Ledger.Enable)
			_, err = fmt.Fprintln(out, "config ok")

			return err
		},
	}
}
