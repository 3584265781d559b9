package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/go-chatclient/internal/api"
	"github.com/npezzotti/go-chatclient/internal/auth"
	"github.com/npezzotti/go-chatclient/internal/config"
	"github.com/npezzotti/go-chatclient/internal/prefs"
	"github.com/npezzotti/go-chatclient/internal/session"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := config.NewLogger(cfg.Env, cfg.LogLevel, os.Stderr)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("chatcli")
	}
}

func run(cfg *config.ClientConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mux *http.ServeMux
	if cfg.MetricsAddr != "" {
		mux = http.NewServeMux()
	}
	statsUpdater := stats.NewStatsUpdater(mux)
	if mux != nil {
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		defer metricsSrv.Close()
	}

	tokens := auth.NewTokenStore(cfg.Token)
	client, err := api.NewClient(cfg.APIURL, tokens, logger, api.WithStats(statsUpdater))
	if err != nil {
		return err
	}

	if tokens.Token() == "" {
		tok, err := client.Login(ctx, api.LoginRequest{Username: cfg.Username, Password: cfg.Password})
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		tokens.Set(tok.AccessToken)
	}

	claims, err := auth.ParseClaims(tokens.Token())
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if claims.Expired(time.Now()) {
		return auth.ErrTokenExpired
	}

	kv, err := prefs.Open(ctx, cfg.PrefsDSN)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	preferences := prefs.New(kv)
	defer preferences.Close()

	dialer, err := transport.NewDialer(cfg.WSURL, logger, statsUpdater)
	if err != nil {
		return err
	}

	c, err := session.NewController(session.Options{
		API:          client,
		Dialer:       dialer,
		Tokens:       tokens,
		User:         session.Identity{UserId: claims.UserId, Username: claims.Username},
		Prefs:        preferences,
		Stats:        statsUpdater,
		Logger:       logger,
		HistoryLimit: cfg.HistoryLimit,
		Reconnect: session.ReconnectPolicy{
			Enabled:     cfg.Reconnect,
			MaxAttempts: cfg.ReconnectMaxAttempts,
			MaxInterval: cfg.ReconnectMaxInterval,
		},
	})
	if err != nil {
		return err
	}

	go c.Run()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("session shutdown")
		}
	}()

	r := newRenderer(os.Stdout, claims.UserId)
	go func() {
		for v := range c.Updates() {
			r.render(v)
		}
	}()

	fmt.Fprintf(os.Stdout, "signed in as %s, /help for commands\n", claims.Username)
	if err := c.LoadRooms(ctx); err != nil {
		logger.Error().Err(err).Msg("load rooms")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	cmds := &commander{
		s:    c,
		out:  os.Stdout,
		open: func(name string) (io.ReadCloser, error) { return os.Open(name) },
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := cmds.dispatch(ctx, line)
			if err != nil {
				fmt.Fprintln(os.Stdout, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}
