// Command deskpilotd runs the remote control daemon: a WebSocket command
// server for phone clients plus a loopback management API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/deskpilot/deskpilot/internal/config"
	"github.com/deskpilot/deskpilot/internal/control"
	"github.com/deskpilot/deskpilot/internal/dispatch"
	"github.com/deskpilot/deskpilot/internal/executor"
	"github.com/deskpilot/deskpilot/internal/metrics"
	"github.com/deskpilot/deskpilot/ws"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "deskpilotd",
		Short:         "Remote control daemon for this computer",
		Long:          "deskpilotd lets a phone or browser on the local network drive this computer's media playback, volume, brightness, keyboard and mouse over a WebSocket connection.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the command server and management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskpilot.toml", "path to the configuration file")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "WebSocket listen port")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deskpilotd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	exec := executor.NewNative(
		executor.WithLogger(log.With().Str("component", "executor").Logger()),
		executor.WithKeyMap(executor.DefaultKeyMap().Merge(cfg.Keys)),
		executor.WithTextLimits(cfg.Input.TextMaxLen, time.Duration(cfg.Input.TextMinIntervalMS)*time.Millisecond),
	)

	dispatcher := dispatch.New(exec,
		dispatch.WithTimeout(time.Duration(cfg.Server.TimeoutSeconds)*time.Second),
		dispatch.WithLogger(log.With().Str("component", "dispatch").Logger()),
		dispatch.WithMetrics(m),
	)

	var checkOrigin ws.CheckOriginFn
	if cfg.Server.AllowAnyOrigin {
		checkOrigin = ws.AllOrigins()
	}

	serverCfg := ws.NewConfig(cfg.Server.Port, dispatcher, &ws.RateLimitConfig{
		Enabled:           cfg.RateLimit.Enabled,
		MessagesPerSecond: rate.Limit(cfg.RateLimit.MessagesPerSecond),
		Burst:             cfg.RateLimit.Burst,
	}, checkOrigin, nil, nil)
	serverCfg.Logger = log.With().Str("component", "websocket").Logger()
	serverCfg.Metrics = m
	server := ws.New(serverCfg)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start websocket server: %w", err)
	}

	api := control.New(server, exec, log.With().Str("component", "control").Logger())
	controlServer := &http.Server{
		Addr:    cfg.Control.Addr,
		Handler: api.Router(),
	}

	controlErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Control.Addr).Msg("management API listening")
		if err := controlServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			controlErr <- err
		}
	}()

	st := server.Status()
	log.Info().
		Int("port", st.Port).
		Str("local_ip", st.LocalIP).
		Msgf("ready: connect to ws://%s:%d/ws", st.LocalIP, st.Port)

	select {
	case err := <-controlErr:
		return fmt.Errorf("management API: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("management API shutdown")
	}
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket server shutdown")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}
