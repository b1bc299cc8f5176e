package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	sessionsrender "github.com/bnema/idiom-relay/internal/adapters/render/sessions"
	"github.com/bnema/idiom-relay/internal/application"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		top    int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show persisted game sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			sessions, err := app.repo.LoadAll(cmd.Context())
			if err != nil {
				var partial *ports.PartialLoadError
				if !errors.As(err, &partial) {
					return fmt.Errorf("load sessions: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}

			timeout := app.cfg.Settings().RoundTimeout
			statuses := application.BuildRoomStatuses(sessions, app.now(), timeout)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			rendered, err := app.sessionsRender(statuses, sessionsrender.RenderOptions{
				RoundTimeout: timeout,
				TopPlayers:   top,
			})
			if err != nil {
				return fmt.Errorf("render sessions: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print sessions as JSON")
	cmd.Flags().IntVar(&top, "top", 0, "show at most this many players per room")

	return cmd
}
