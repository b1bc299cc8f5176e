package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bnema/idiom-relay/internal/application"
	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "RELAY"

	TransportMemory    = "memory"
	TransportRedis     = "redis"
	TransportWebsocket = "websocket"

	DefaultOracleURL = "https://api.dudunas.top/api/chengyujielong"
)

// Game mirrors the [IdiomSolitaire] table. Durations are whole seconds.
type Game struct {
	Enable            bool     `mapstructure:"enable"`
	Commands          []string `mapstructure:"commands"`
	CommandTip        string   `mapstructure:"command-tip"`
	EndCommands       []string `mapstructure:"end-commands"`
	RoundTimeout      int      `mapstructure:"round-timeout"`
	ReminderTime      int      `mapstructure:"reminder-time"`
	Mode              string   `mapstructure:"mode"`
	AllowRepeat       bool     `mapstructure:"allow-repeat"`
	LocalCheck        bool     `mapstructure:"local-check"`
	APIURL            string   `mapstructure:"api-url"`
	AppSecret         string   `mapstructure:"app-secret"`
	OracleTimeout     int      `mapstructure:"oracle-timeout"`
	BasePoints        int      `mapstructure:"base-points"`
	BonusPoints       int      `mapstructure:"bonus-points"`
	ErrorCooldown     int      `mapstructure:"error-cooldown"`
	ShowErrorTips     bool     `mapstructure:"show-error-tips"`
	EnablePersistence bool     `mapstructure:"enable-persistence"`
	DebugMode         bool     `mapstructure:"debug-mode"`
	RoomSuffix        string   `mapstructure:"room-suffix"`
}

type Transport struct {
	Kind          string `mapstructure:"kind"`
	InboundTopic  string `mapstructure:"inbound-topic"`
	OutboundTopic string `mapstructure:"outbound-topic"`
	RedisAddr     string `mapstructure:"redis-addr"`
	RedisGroup    string `mapstructure:"redis-group"`
	RedisConsumer string `mapstructure:"redis-consumer"`
	GatewayURL    string `mapstructure:"gateway-url"`
	Workers       int    `mapstructure:"workers"`
}

type Storage struct {
	SessionsDir string `mapstructure:"sessions-dir"`
}

type Ledger struct {
	Enable bool   `mapstructure:"enable"`
	DSN    string `mapstructure:"dsn"`
}

type Status struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Game      Game      `mapstructure:"idiomsolitaire"`
	Transport Transport `mapstructure:"transport"`
	Storage   Storage   `mapstructure:"storage"`
	Ledger    Ledger    `mapstructure:"ledger"`
	Status    Status    `mapstructure:"status"`
}

// Error reports a single invalid configuration value.
type Error struct {
	Key    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Reason, e.Err)
	}

	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("IdiomSolitaire.enable", true)
	v.SetDefault("IdiomSolitaire.commands", []string{"成语接龙", "接龙游戏", "开始接龙"})
	v.SetDefault("IdiomSolitaire.command-tip", "")
	v.SetDefault("IdiomSolitaire.end-commands", []string{"游戏结束", "结束接龙", "结束游戏"})
	v.SetDefault("IdiomSolitaire.round-timeout", 60)
	v.SetDefault("IdiomSolitaire.reminder-time", 30)
	v.SetDefault("IdiomSolitaire.mode", string(domain.ModeExact))
	v.SetDefault("IdiomSolitaire.allow-repeat", false)
	v.SetDefault("IdiomSolitaire.local-check", true)
	v.SetDefault("IdiomSolitaire.api-url", DefaultOracleURL)
	v.SetDefault("IdiomSolitaire.app-secret", "")
	v.SetDefault("IdiomSolitaire.oracle-timeout", 8)
	v.SetDefault("IdiomSolitaire.base-points", 5)
	v.SetDefault("IdiomSolitaire.bonus-points", 2)
	v.SetDefault("IdiomSolitaire.error-cooldown", 5)
	v.SetDefault("IdiomSolitaire.show-error-tips", true)
	v.SetDefault("IdiomSolitaire.enable-persistence", true)
	v.SetDefault("IdiomSolitaire.debug-mode", false)
	v.SetDefault("IdiomSolitaire.room-suffix", "@chatroom")

	v.SetDefault("transport.kind", TransportMemory)
	v.SetDefault("transport.inbound-topic", "idiom.inbound")
	v.SetDefault("transport.outbound-topic", "idiom.outbound")
	v.SetDefault("transport.redis-addr", "127.0.0.1:6379")
	v.SetDefault("transport.redis-group", "idiom-relay")
	v.SetDefault("transport.redis-consumer", "")
	v.SetDefault("transport.gateway-url", "")
	v.SetDefault("transport.workers", 8)

	v.SetDefault("storage.sessions-dir", "data/sessions")

	v.SetDefault("ledger.enable", false)
	v.SetDefault("ledger.dsn", "data/ledger.db")

	v.SetDefault("status.addr", "127.0.0.1:8089")
}

// NewViper returns a viper instance with defaults and RELAY_* environment
// overrides. path may be empty, in which case only defaults and the
// environment apply.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Key: "file", Reason: "read " + path, Err: err}
	}

	return v, nil
}

// Load reads the file at path. A missing file is not an error when optional
// is set.
func Load(path string, optional bool) (*Config, *viper.Viper, error) {
	if optional && path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	v, err := NewViper(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, nil, err
	}

	return cfg, v, nil
}

func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Key: "file", Reason: "decode", Err: err}
	}
	cfg.Game.Commands = trimAll(cfg.Game.Commands)
	cfg.Game.EndCommands = trimAll(cfg.Game.EndCommands)

	return &cfg, nil
}

// Validate returns the first invalid value as an *Error.
func (c *Config) Validate() error {
	g := c.Game
	switch {
	case len(g.Commands) == 0:
		return &Error{Key: "IdiomSolitaire.commands", Reason: "at least one start command is required"}
	case len(g.EndCommands) == 0:
		return &Error{Key: "IdiomSolitaire.end-commands", Reason: "at least one end command is required"}
	case g.RoundTimeout <= 0:
		return &Error{Key: "IdiomSolitaire.round-timeout", Reason: "must be positive"}
	case g.ReminderTime < 0 || g.ReminderTime >= g.RoundTimeout:
		return &Error{Key: "IdiomSolitaire.reminder-time", Reason: "must be shorter than round-timeout"}
	case g.OracleTimeout <= 0:
		return &Error{Key: "IdiomSolitaire.oracle-timeout", Reason: "must be positive"}
	case g.BasePoints < 0 || g.BonusPoints < 0:
		return &Error{Key: "IdiomSolitaire.base-points", Reason: "points must not be negative"}
	case g.ErrorCooldown < 0:
		return &Error{Key: "IdiomSolitaire.error-cooldown", Reason: "must not be negative"}
	}

	parsed, err := url.Parse(g.APIURL)
	if err != nil {
		return &Error{Key: "IdiomSolitaire.api-url", Reason: "invalid url", Err: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return &Error{Key: "IdiomSolitaire.api-url", Reason: "must be an absolute http(s) url"}
	}

	switch c.Transport.Kind {
	case TransportMemory:
	case TransportRedis:
		if strings.TrimSpace(c.Transport.RedisAddr) == "" {
			return &Error{Key: "transport.redis-addr", Reason: "required for the redis transport"}
		}
	case TransportWebsocket:
		if !strings.HasPrefix(c.Transport.GatewayURL, "ws://") && !strings.HasPrefix(c.Transport.GatewayURL, "wss://") {
			return &Error{Key: "transport.gateway-url", Reason: "must be a ws:// or wss:// url"}
		}
	default:
		return &Error{Key: "transport.kind", Reason: fmt.Sprintf("unknown transport %q", c.Transport.Kind)}
	}

	if c.Transport.Workers <= 0 {
		return &Error{Key: "transport.workers", Reason: "must be positive"}
	}
	if c.Ledger.Enable && strings.TrimSpace(c.Ledger.DSN) == "" {
		return &Error{Key: "ledger.dsn", Reason: "required when the ledger is enabled"}
	}

	return nil
}

// Settings converts the game table into engine settings.
func (c *Config) Settings() application.Settings {
	g := c.Game

	return application.Settings{
		StartCommands: g.Commands,
		EndCommands:   g.EndCommands,
		RoundTimeout:  seconds(g.RoundTimeout),
		ReminderLead:  seconds(g.ReminderTime),
		Mode:          domain.ParseMatchMode(g.Mode),
		AllowRepeat:   g.AllowRepeat,
		LocalCheck:    g.LocalCheck,
		Points:        domain.Points{Base: g.BasePoints, Bonus: g.BonusPoints},
		ErrorCooldown: seconds(g.ErrorCooldown),
		ShowErrorTips: g.ShowErrorTips,
		RoomSuffix:    g.RoomSuffix,
	}
}

func (c *Config) OracleTimeout() time.Duration {
	return seconds(c.Game.OracleTimeout)
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}

	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
