package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/idiom-relay/internal/adapters/httpapi"
	"github.com/bnema/idiom-relay/internal/application"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.serve(ctx)
		},
	}
}

// serve blocks until ctx is cancelled. An invalid or disabled configuration
// keeps the process up with the relay switched off.
func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		a.log.Error().Err(err).Msg("invalid configuration, relay disabled")
		<-ctx.Done()
		return nil
	}
	if !a.cfg.Game.Enable {
		a.log.Info().Msg("relay disabled by configuration")
		<-ctx.Done()
		return nil
	}

	chat, err := a.wireTransport()
	if err != nil {
		return err
	}
	defer func() {
		if err := chat.close(); err != nil {
			a.log.Warn().Err(err).Msg("close transport")
		}
	}()

	store := application.NewSessionStore()
	deps := application.Deps{
		Oracle: a.oracleClient(),
		Sender: chat.sender,
		Clock:  ports.SystemClock{},
		Logger: a.log,
	}

	if a.cfg.Ledger.Enable {
		ledger, err := a.openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()
		deps.Ledger = ledger
		deps.Names = ledger
	}

	var persister *application.Persister
	if a.cfg.Game.EnablePersistence {
		persister = application.NewPersister(a.repo, store, a.log.With().Str("component", "persister").Logger())
		deps.Saver = persister
	}

	engine, err := application.NewEngine(a.cfg.Settings(), store, deps)
	if err != nil {
		a.log.Error().Err(err).Msg("invalid game settings, relay disabled")
		<-ctx.Done()
		return nil
	}

	if persister != nil {
		if _, err := engine.Restore(ctx, a.repo); err != nil {
			a.log.Error().Err(err).Str("dir", a.repo.Dir()).Msg("restore sessions")
		}
	}

	runCtx, stopRun := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRun()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return application.NewScheduler(engine, application.DefaultSweepInterval).Run(gctx)
	})
	g.Go(func() error {
		return chat.inbox.Listen(gctx, engine.HandleMessage)
	})
	if chat.echo != nil {
		g.Go(func() error {
			return chat.echo(gctx)
		})
	}
	if persister != nil {
		g.Go(func() error {
			return persister.Run(gctx)
		})
	}
	if addr := a.cfg.Status.Addr; addr != "" {
		g.Go(func() error {
			return httpapi.Serve(gctx, addr, httpapi.NewRouter(engine, chat.injector))
		})
	}

	// Games are ended while the transport is still listening so the final
	// standings reach the rooms.
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		ended := engine.Shutdown(shutdownCtx)
		a.log.Info().Int("ended", ended).Msg("relay stopping")
		stopRun()

		return nil
	})

	a.log.Info().
		Str("transport", a.cfg.Transport.Kind).
		Str("status_addr", a.cfg.Status.Addr).
		Bool("persistence", persister != nil).
		Bool("ledger", a.cfg.Ledger.Enable).
		Msg("relay started")

	err = g.Wait()
	if persister != nil {
		if flushErr := persister.Flush(context.Background()); flushErr != nil {
			err = errors.Join(err, flushErr)
		}
	}

	return err
}
