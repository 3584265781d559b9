package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-chatclient/internal/config"
	"github.com/npezzotti/go-chatclient/internal/devserver"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/rs/zerolog"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

// parseSeed reads comma separated "name:password" pairs.
func parseSeed(raw string) ([]devserver.SeedAccount, error) {
	var accounts []devserver.SeedAccount
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, password, ok := strings.Cut(pair, ":")
		if !ok || name == "" || password == "" {
			return nil, fmt.Errorf("invalid seed account %q, want name:password", pair)
		}
		accounts = append(accounts, devserver.SeedAccount{Username: name, Password: password})
	}

	return accounts, nil
}

func openRepository(path string) (devserver.Repository, func() error, error) {
	if path == "" {
		return devserver.NewMemoryRepository(), func() error { return nil }, nil
	}

	repo, err := devserver.NewSQLiteRepository(path)
	if err != nil {
		return nil, nil, err
	}

	return repo, repo.Close, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var envCfg config.ServerConfig
	if err := config.ParseEnv(&envCfg); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if envCfg.SigningSecret == "" {
		envCfg.SigningSecret = defaultSigningKey
	}

	var (
		allowedOrigins = stringSliceFlag(envCfg.AllowedOrigins)
		seed           string
		metricsAddr    string
	)
	flag.StringVar(&envCfg.ServerAddr, "addr", envCfg.ServerAddr, "server address")
	flag.StringVar(&envCfg.SigningSecret, "signing-key", envCfg.SigningSecret, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&seed, "seed", "alice:password1,bob:password2", "comma-separated name:password accounts created at startup")
	flag.StringVar(&envCfg.DatabasePath, "db", envCfg.DatabasePath, "SQLite database path; empty keeps data in memory")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on")
	flag.StringVar(&envCfg.LogLevel, "log-level", envCfg.LogLevel, "log level")
	flag.Parse()

	logger := config.NewLogger(envCfg.Env, envCfg.LogLevel, os.Stderr)

	cfg, err := config.NewServerConfig(envCfg.ServerAddr, envCfg.SigningSecret, allowedOrigins)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	accounts, err := parseSeed(seed)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}

	repo, closeRepo, err := openRepository(envCfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("repository")
	}
	defer closeRepo()

	users, general, err := devserver.Seed(repo, accounts...)
	switch {
	case errors.Is(err, devserver.ErrConflict):
		logger.Warn().Err(err).Msg("skipping seed, accounts already exist")
	case err != nil:
		logger.Fatal().Err(err).Msg("seed")
	}
	for _, u := range users {
		logger.Info().Str("user", u.Username).Str("id", u.Id).Msg("seeded account")
	}
	if general.Id != "" {
		logger.Info().Str("room_id", general.Id).Str("join_code", general.JoinCode).Msg("seeded room")
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	hub := devserver.NewHub(logger, repo, statsUpdater)
	srv := devserver.NewServer(logger, hub, repo, cfg)

	go hub.Run()

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Start()
	}()

	var metricsSrv *http.Server
	if metricsAddr != "" {
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
			errCh <- metricsSrv.ListenAndServe()
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutdown(logger, srv, hub, metricsSrv)
}

func shutdown(logger zerolog.Logger, srv *devserver.Server, hub *devserver.Hub, metricsSrv *http.Server) {
	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatal().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down hub...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Fatal().Err(err).Msg("hub shutdown")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutDownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown")
		}
	}

	logger.Info().Msg("shutdown complete")
}
