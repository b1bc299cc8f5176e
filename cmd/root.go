package cmd

import "github.com/spf13/cobra"

type rootOptions struct {
	configPath string
	logLevel   string
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Idiom relay (成语接龙) game coordinator for group chats",
		Long:          "relay runs idiom chain games in chat rooms: it listens to group messages, adjudicates submissions through the idiom service, keeps scores and times out idle rounds.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to the TOML config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newSessionsCmd(opts),
		newConfigCmd(opts),
		newLedgerCmd(opts),
	)

	return rootCmd
}
