package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/bnema/idiom-relay/internal/adapters/httpapi"
	"github.com/bnema/idiom-relay/internal/adapters/oracle"
	sessionsrender "github.com/bnema/idiom-relay/internal/adapters/render/sessions"
	tomlrepo "github.com/bnema/idiom-relay/internal/adapters/repo/toml"
	"github.com/bnema/idiom-relay/internal/adapters/sqlite"
	"github.com/bnema/idiom-relay/internal/adapters/transport/bus"
	"github.com/bnema/idiom-relay/internal/adapters/transport/wsgateway"
	"github.com/bnema/idiom-relay/internal/application"
	"github.com/bnema/idiom-relay/internal/config"
	"github.com/bnema/idiom-relay/internal/logging"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigPath = "config.toml"

type app struct {
	cfg            *config.Config
	viper          *viper.Viper
	log            zerolog.Logger
	repo           *tomlrepo.Repository
	sessionsRender func([]application.RoomStatus, sessionsrender.RenderOptions) (string, error)
	httpClient     *http.Client
	now            func() time.Time
}

// chatTransport bundles whatever carries chat traffic. injector is only set
// for the in-memory bus.
type chatTransport struct {
	inbox    ports.Inbox
	sender   ports.Sender
	injector httpapi.Injector
	// echo logs outbound notices when nothing else consumes them.
	echo  func(ctx context.Context) error
	close func() error
}

func wireApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	envErr := godotenv.Load()

	cfg, v, err := config.Load(opts.configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}

	logger, err := logging.Setup(logging.Options{
		Level:  opts.logLevel,
		Debug:  cfg.Game.DebugMode,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn().Err(envErr).Msg("load .env")
	}

	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire session repository: %w", err)
	}

	return &app{
		cfg:            cfg,
		viper:          v,
		log:            logger,
		repo:           repo,
		sessionsRender: sessionsrender.Render,
		httpClient:     http.DefaultClient,
		now:            time.Now,
	}, nil
}

func (a *app) oracleClient() oracle.Client {
	return oracle.Client{
		BaseURL:        a.cfg.Game.APIURL,
		Secret:         a.cfg.Game.AppSecret,
		HTTPClient:     a.httpClient,
		RequestTimeout: a.cfg.OracleTimeout(),
	}
}

func (a *app) openLedger() (*sqlite.Store, error) {
	store, err := sqlite.Open(a.cfg.Ledger.DSN)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", a.cfg.Ledger.DSN, err)
	}

	return store, nil
}

func (a *app) wireTransport() (*chatTransport, error) {
	t := a.cfg.Transport
	topics := bus.Topics{Inbound: t.InboundTopic, Outbound: t.OutboundTopic}
	wlog := logging.NewWatermillAdapter(a.log.With().Str("component", "watermill").Logger())

	switch t.Kind {
	case config.TransportRedis:
		b, err := bus.NewRedis(bus.RedisSettings{
			Addr:     t.RedisAddr,
			Group:    t.RedisGroup,
			Consumer: t.RedisConsumer,
		}, topics, t.Workers, a.log, wlog)
		if err != nil {
			return nil, fmt.Errorf("wire redis transport: %w", err)
		}
		return &chatTransport{inbox: b, sender: b, close: b.Close}, nil
	case config.TransportWebsocket:
		client, err := wsgateway.New(wsgateway.Options{URL: t.GatewayURL, Workers: t.Workers}, a.log)
		if err != nil {
			return nil, fmt.Errorf("wire gateway transport: %w", err)
		}
		return &chatTransport{inbox: client, sender: client, close: client.Close}, nil
	default:
		b := bus.NewMemory(topics, t.Workers, a.log, wlog)
		return &chatTransport{
			inbox:    b,
			sender:   b,
			injector: b,
			echo:     func(ctx context.Context) error { return echoOutbound(ctx, b, a.log) },
			close:    b.Close,
		}, nil
	}
}

func echoOutbound(ctx context.Context, b *bus.Transport, log zerolog.Logger) error {
	messages, err := b.Outbound(ctx)
	if err != nil {
		return err
	}

	for msg := range messages {
		notice, err := bus.DecodeOutbound(msg.Payload)
		msg.Ack()
		if err != nil {
			log.Warn().Err(err).Msg("undecodable outbound notice")
			continue
		}
		log.Info().Str("room", notice.RoomID).Str("text", notice.Content).Msg("outbound notice")
	}

	return nil
}
