package config

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// ClientConfig configures the chat client.
type ClientConfig struct {
	APIURL      string `env:"CHAT_API_URL" envDefault:"http://localhost:8000/api/v1"`
	WSURL       string `env:"CHAT_WS_URL" envDefault:"ws://localhost:8000/ws"`
	Token       string `env:"CHAT_TOKEN"`
	Username    string `env:"CHAT_USERNAME"`
	Password    string `env:"CHAT_PASSWORD"`
	PrefsDSN    string `env:"CHAT_PREFS" envDefault:"chatclient.db"`
	MetricsAddr string `env:"CHAT_METRICS_ADDR"`
	Env         string `env:"CHAT_ENV" envDefault:"development"`
	LogLevel    string `env:"CHAT_LOG_LEVEL" envDefault:"info"`

	HistoryLimit int `env:"CHAT_HISTORY_LIMIT" envDefault:"100"`

	Reconnect            bool          `env:"CHAT_RECONNECT" envDefault:"false"`
	ReconnectMaxAttempts uint          `env:"CHAT_RECONNECT_MAX_ATTEMPTS" envDefault:"5"`
	ReconnectMaxInterval time.Duration `env:"CHAT_RECONNECT_MAX_INTERVAL" envDefault:"30s"`
}

// ServerConfig configures the local development backend.
type ServerConfig struct {
	ServerAddr     string   `env:"DEVSERVER_ADDR" envDefault:"localhost:8000"`
	SigningSecret  string   `env:"DEVSERVER_SIGNING_KEY"`
	AllowedOrigins []string `env:"DEVSERVER_ALLOWED_ORIGINS" envSeparator:","`
	// DatabasePath selects the SQLite repository; empty keeps everything in memory.
	DatabasePath string `env:"DEVSERVER_DB"`
	Env            string   `env:"DEVSERVER_ENV" envDefault:"development"`
	LogLevel       string   `env:"DEVSERVER_LOG_LEVEL" envDefault:"info"`

	SigningKey []byte `env:"-"`
}

// LoadDotEnv loads variables from the given files, or .env when none are
// given. Missing files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}

	return nil
}

func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	return nil
}

// LoadClient reads .env and the environment. Call RegisterFlags and parse
// the flag set afterwards so flags override, then Validate.
func LoadClient() (*ClientConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *ClientConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.APIURL, "api-url", c.APIURL, "REST API base url")
	fs.StringVar(&c.WSURL, "ws-url", c.WSURL, "websocket base url")
	fs.StringVar(&c.Token, "token", c.Token, "bearer token")
	fs.StringVar(&c.Username, "username", c.Username, "login email or user name")
	fs.StringVar(&c.Password, "password", c.Password, "login password")
	fs.StringVar(&c.PrefsDSN, "prefs", c.PrefsDSN, "preference store: sqlite path, redis:// url or memory")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address to serve /metrics on")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.BoolVar(&c.Reconnect, "reconnect", c.Reconnect, "reconnect after an unexpected close")
}

func (c *ClientConfig) Validate() error {
	if err := validateURL("api url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("websocket url", c.WSURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if c.Token == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("either a token or a username and password are required")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	return nil
}

func validateURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}

	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}

	return fmt.Errorf("%s must use one of %s", name, strings.Join(schemes, ", "))
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}

	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewServerConfig(serverAddr, base64Secret string, allowedOrigins []string) (*ServerConfig, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &ServerConfig{
		ServerAddr:     serverAddr,
		SigningSecret:  base64Secret,
		AllowedOrigins: allowedOrigins,
		SigningKey:     signingKey,
		Env:            "development",
		LogLevel:       "info",
	}, nil
}

// NewLogger returns a console logger in development and a JSON logger
// otherwise.
func NewLogger(environment, level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if environment == "development" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
