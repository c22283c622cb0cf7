package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/neox5/bbexporter/internal/app"
	"github.com/neox5/bbexporter/internal/config"
	"github.com/neox5/bbexporter/internal/logging"
	"github.com/neox5/bbexporter/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "bbexporter",
		Usage:   "Prometheus exporter for Buildbot build, step and worker events",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to configuration file",
				Sources: cli.EnvVars("BBEXPORTER_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("BBEXPORTER_DEBUG"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "metrics listen port (overrides config)",
				Sources: cli.EnvVars("BBEXPORTER_PORT"),
			},
			&cli.StringFlag{
				Name:    "interface",
				Usage:   "metrics bind interface, empty for all (overrides config)",
				Sources: cli.EnvVars("BBEXPORTER_INTERFACE"),
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server carrying host events (overrides config)",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "buildbot-url",
				Usage:   "Buildbot data API base URL (overrides config)",
				Sources: cli.EnvVars("BUILDBOT_API_URL"),
			},
		},
		Action: serve,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	debug := cmd.Bool("debug")

	// Bootstrap logging until the configured logger exists
	bootstrap := logging.NewWithWriter(config.LogConfig{}, debug, os.Stdout)
	slog.SetDefault(bootstrap)

	slog.Info("starting bbexporter", "version", version.String(), "config", configPath)

	// Load configuration
	slog.Debug("--- Configuration Loading ---")
	cfg, err := config.LoadOrDefault(configPath, cmd.IsSet("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Apply(overrides(cmd)); err != nil {
		return fmt.Errorf("invalid command line override: %w", err)
	}

	logger, closer, err := logging.New(cfg.Settings.Log, debug)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	// Initialize application
	slog.Debug("--- Application Wiring ---")
	application, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	// Setup graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP re-registers consumers
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-shutdownCtx.Done():
				return
			case <-hup:
				if err := application.Reconfigure(shutdownCtx); err != nil {
					slog.Error("reconfiguration failed", "error", err)
				}
			}
		}
	}()

	slog.Debug("--- Application Running ---")
	if err := application.Run(shutdownCtx); err != nil {
		return err
	}

	slog.Info("shutdown complete")
	return nil
}

func overrides(cmd *cli.Command) config.Overrides {
	var o config.Overrides
	if cmd.IsSet("port") {
		port := cmd.Int("port")
		o.Port = &port
	}
	if cmd.IsSet("interface") {
		iface := cmd.String("interface")
		o.Interface = &iface
	}
	if cmd.IsSet("nats-url") {
		u := cmd.String("nats-url")
		o.NATSURL = &u
	}
	if cmd.IsSet("buildbot-url") {
		u := cmd.String("buildbot-url")
		o.APIURL = &u
	}
	return o
}
